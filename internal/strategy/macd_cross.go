package strategy

import (
	"fmt"

	"sable/internal/engine"
	"sable/internal/market"
)

// MACDCross MACD 金叉死叉策略。
type MACDCross struct {
	fast   int
	slow   int
	signal int
}

func NewMACDCross(params map[string]any) (engine.Strategy, error) {
	s := &MACDCross{
		fast:   paramInt(params, "fast", 12),
		slow:   paramInt(params, "slow", 26),
		signal: paramInt(params, "signal", 9),
	}
	if s.fast <= 0 || s.slow <= 0 || s.signal <= 0 || s.fast >= s.slow {
		return nil, fmt.Errorf("macd_cross 参数非法: fast=%d slow=%d signal=%d", s.fast, s.slow, s.signal)
	}
	return s, nil
}

func (s *MACDCross) Name() string { return "macd_cross" }

func (s *MACDCross) RequiredIndicators() []string {
	return []string{
		fmt.Sprintf("macd:%d,%d,%d", s.fast, s.slow, s.signal),
		fmt.Sprintf("macd_signal:%d,%d,%d", s.fast, s.slow, s.signal),
	}
}

func (s *MACDCross) BuySignals(series *market.Series, ind engine.Indicators) ([]engine.Signal, error) {
	buys, _ := s.scan(series, ind)
	return buys, nil
}

func (s *MACDCross) SellSignals(series *market.Series, ind engine.Indicators, open []engine.Order) ([]engine.Signal, error) {
	_, sells := s.scan(series, ind)
	return capSells(sells, len(open)), nil
}

func (s *MACDCross) scan(series *market.Series, ind engine.Indicators) (buys, sells []engine.Signal) {
	macd := ind[fmt.Sprintf("macd:%d,%d,%d", s.fast, s.slow, s.signal)]
	sig := ind[fmt.Sprintf("macd_signal:%d,%d,%d", s.fast, s.slow, s.signal)]
	// 信号线就绪前两条序列都为 0，跳过 warmup 段
	warmup := s.slow + s.signal
	holding := false
	for i := warmup; i < series.Len(); i++ {
		candle := series.Candle(i)
		goldenCross := macd[i-1] <= sig[i-1] && macd[i] > sig[i]
		deathCross := macd[i-1] >= sig[i-1] && macd[i] < sig[i]
		if goldenCross && !holding {
			buys = append(buys, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: "macd_golden_cross",
				Tag:    s.Name(),
			})
			holding = true
		} else if deathCross && holding {
			sells = append(sells, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: "macd_death_cross",
				Tag:    s.Name(),
			})
			holding = false
		}
	}
	return buys, sells
}
