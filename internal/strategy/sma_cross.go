package strategy

import (
	"fmt"

	"sable/internal/engine"
	"sable/internal/market"
)

// SMACross 双均线交叉策略：快线上穿慢线买入，下穿卖出。
type SMACross struct {
	fast int
	slow int
}

func NewSMACross(params map[string]any) (engine.Strategy, error) {
	s := &SMACross{
		fast: paramInt(params, "fast", 10),
		slow: paramInt(params, "slow", 30),
	}
	if s.fast <= 0 || s.slow <= 0 || s.fast >= s.slow {
		return nil, fmt.Errorf("sma_cross 参数非法: fast=%d slow=%d", s.fast, s.slow)
	}
	return s, nil
}

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) RequiredIndicators() []string {
	return []string{
		fmt.Sprintf("sma:%d", s.fast),
		fmt.Sprintf("sma:%d", s.slow),
	}
}

func (s *SMACross) BuySignals(series *market.Series, ind engine.Indicators) ([]engine.Signal, error) {
	buys, _ := s.scan(series, ind)
	return buys, nil
}

func (s *SMACross) SellSignals(series *market.Series, ind engine.Indicators, open []engine.Order) ([]engine.Signal, error) {
	_, sells := s.scan(series, ind)
	return capSells(sells, len(open)), nil
}

// scan 单次遍历产出交叉信号，内部维护虚拟持仓保证买卖交替。
func (s *SMACross) scan(series *market.Series, ind engine.Indicators) (buys, sells []engine.Signal) {
	fast := ind[fmt.Sprintf("sma:%d", s.fast)]
	slow := ind[fmt.Sprintf("sma:%d", s.slow)]
	holding := false
	for i := 1; i < series.Len(); i++ {
		if slow[i-1] == 0 || slow[i] == 0 {
			continue // 慢线尚未就绪
		}
		candle := series.Candle(i)
		crossUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		crossDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
		if crossUp && !holding {
			buys = append(buys, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: "sma_cross_up",
				Tag:    s.Name(),
			})
			holding = true
		} else if crossDown && holding {
			sells = append(sells, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: "sma_cross_down",
				Tag:    s.Name(),
			})
			holding = false
		}
	}
	return buys, sells
}

// capSells 按实际持仓数截断卖出信号，避免对不存在的仓位平仓。
func capSells(sells []engine.Signal, open int) []engine.Signal {
	if len(sells) <= open {
		return sells
	}
	return sells[:open]
}
