package engine

import "fmt"

// VectorResult 是向量化全仓回放的输出，用于与逐单账本交叉校验。
type VectorResult struct {
	Trades      int       `json:"trades"`
	FinalEquity float64   `json:"final_equity"`
	Equities    []float64 `json:"-"`
}

// SimulateVector 消费 enter/exit 布尔数组做一次全进全出回放：
// enter 且空仓则全仓买入，exit 且持仓则清仓。它刻意独立于账本实现，
// 两条路径的成交次数一致性是对齐正确性的旁证。
func SimulateVector(closes []float64, enter, exit []bool, initial, commissionRate float64) (VectorResult, error) {
	if len(closes) != len(enter) || len(closes) != len(exit) {
		return VectorResult{}, fmt.Errorf("数组长度不一致: closes=%d enter=%d exit=%d",
			len(closes), len(enter), len(exit))
	}
	if initial <= 0 {
		return VectorResult{}, fmt.Errorf("初始资金必须为正, got %v", initial)
	}

	cash := initial
	holdings := 0.0
	res := VectorResult{Equities: make([]float64, 0, len(closes))}
	for i, price := range closes {
		if price <= 0 {
			return VectorResult{}, fmt.Errorf("第 %d 根 K 线收盘价非法: %v", i, price)
		}
		if enter[i] && holdings == 0 && cash > 0 {
			fee := cash * commissionRate
			holdings = (cash - fee) / price
			cash = 0
		} else if exit[i] && holdings > 0 {
			proceeds := holdings * price
			cash = proceeds - proceeds*commissionRate
			holdings = 0
			res.Trades++
		}
		res.Equities = append(res.Equities, cash+holdings*price)
	}
	if n := len(res.Equities); n > 0 {
		res.FinalEquity = res.Equities[n-1]
	}
	return res, nil
}
