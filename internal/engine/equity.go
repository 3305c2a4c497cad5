package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"sable/internal/market"
)

// EquityPoint 是某个时间戳上的一次账户状态采样。
// 不变量：Equity = Cash + PositionValue。
type EquityPoint struct {
	Time          int64           `json:"time"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"position_value"`
	Equity        decimal.Decimal `json:"equity"`
	NetValue      float64         `json:"net_value"` // equity / initial
}

// Curve 是按时间轴重建的资金曲线。
type Curve []EquityPoint

// Final 返回最后一个采样点；空曲线返回 false。
func (c Curve) Final() (EquityPoint, bool) {
	if len(c) == 0 {
		return EquityPoint{}, false
	}
	return c[len(c)-1], true
}

// Equities 返回 equity 的 float64 序列，供统计指标使用。
func (c Curve) Equities() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i], _ = p.Equity.Float64()
	}
	return out
}

// BuildCurve 在账本定稿后按时间轴单次回放，重建逐 K 线净值历史：
// 开仓扣减现金，平仓回流开仓占用与已实现盈亏，未平仓部分按当根收盘价盯市。
// 空时间轴返回空曲线而非错误；最终 K 线上仍未平仓的订单只盯市、不强平。
func BuildCurve(series *market.Series, orders []Order, initial decimal.Decimal) (Curve, error) {
	if initial.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("初始资金必须为正, got %s", initial)
	}
	if series.Len() == 0 {
		return Curve{}, nil
	}

	type event struct {
		ts    int64
		seq   int64
		open  bool
		order Order
	}
	var events []event
	for _, o := range orders {
		if o.Status != StatusFilled && o.Status != StatusClosed {
			continue
		}
		events = append(events, event{ts: o.OpenTime, seq: o.ID, open: true, order: o})
		if o.Status == StatusClosed {
			events = append(events, event{ts: o.CloseTime, seq: o.ID, open: false, order: o})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ts != events[j].ts {
			return events[i].ts < events[j].ts
		}
		// 同一时刻先平后开，释放的资金可立即复用
		if events[i].open != events[j].open {
			return !events[i].open
		}
		return events[i].seq < events[j].seq
	})

	initialF, _ := initial.Float64()
	cash := initial
	live := make(map[int64]Order)
	liveSeq := make([]int64, 0, 8)
	cursor := 0

	curve := make(Curve, 0, series.Len())
	for i := 0; i < series.Len(); i++ {
		candle := series.Candle(i)
		for cursor < len(events) && events[cursor].ts <= candle.CloseTime {
			ev := events[cursor]
			cursor++
			if ev.open {
				cash = cash.Sub(ev.order.OpenCost())
				live[ev.order.ID] = ev.order
				liveSeq = append(liveSeq, ev.order.ID)
			} else {
				cash = cash.Add(ev.order.CloseProceeds())
				delete(live, ev.order.ID)
			}
		}

		price := decimal.NewFromFloat(candle.Close)
		posValue := decimal.Zero
		for _, id := range liveSeq {
			o, ok := live[id]
			if !ok {
				continue
			}
			posValue = posValue.Add(o.MarketValue(price))
		}
		equity := cash.Add(posValue)
		equityF, _ := equity.Float64()
		curve = append(curve, EquityPoint{
			Time:          candle.CloseTime,
			Cash:          cash,
			PositionValue: posValue,
			Equity:        equity,
			NetValue:      equityF / initialF,
		})
	}
	return curve, nil
}
