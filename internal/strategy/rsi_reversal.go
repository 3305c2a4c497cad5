package strategy

import (
	"fmt"

	"sable/internal/engine"
	"sable/internal/market"
)

// RSIReversal 超买超卖反转策略：RSI 自下而上穿越超卖线买入，
// 自上而下跌破超买线卖出。
type RSIReversal struct {
	period     int
	oversold   float64
	overbought float64
}

func NewRSIReversal(params map[string]any) (engine.Strategy, error) {
	s := &RSIReversal{
		period:     paramInt(params, "period", 14),
		oversold:   paramFloat(params, "oversold", 30),
		overbought: paramFloat(params, "overbought", 70),
	}
	if s.period <= 0 {
		return nil, fmt.Errorf("rsi_reversal 周期非法: %d", s.period)
	}
	if s.oversold >= s.overbought {
		return nil, fmt.Errorf("rsi_reversal 阈值非法: oversold=%v overbought=%v", s.oversold, s.overbought)
	}
	return s, nil
}

func (s *RSIReversal) Name() string { return "rsi_reversal" }

func (s *RSIReversal) RequiredIndicators() []string {
	return []string{fmt.Sprintf("rsi:%d", s.period)}
}

func (s *RSIReversal) BuySignals(series *market.Series, ind engine.Indicators) ([]engine.Signal, error) {
	buys, _ := s.scan(series, ind)
	return buys, nil
}

func (s *RSIReversal) SellSignals(series *market.Series, ind engine.Indicators, open []engine.Order) ([]engine.Signal, error) {
	_, sells := s.scan(series, ind)
	return capSells(sells, len(open)), nil
}

func (s *RSIReversal) scan(series *market.Series, ind engine.Indicators) (buys, sells []engine.Signal) {
	rsi := ind[fmt.Sprintf("rsi:%d", s.period)]
	holding := false
	for i := 1; i < series.Len(); i++ {
		if rsi[i-1] == 0 || rsi[i] == 0 {
			continue
		}
		candle := series.Candle(i)
		exitOversold := rsi[i-1] <= s.oversold && rsi[i] > s.oversold
		breakOverbought := rsi[i-1] >= s.overbought && rsi[i] < s.overbought
		if exitOversold && !holding {
			buys = append(buys, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: fmt.Sprintf("rsi_exit_oversold_%.0f", s.oversold),
				Tag:    s.Name(),
			})
			holding = true
		} else if breakOverbought && holding {
			sells = append(sells, engine.Signal{
				Time:   candle.CloseTime,
				Price:  candle.Close,
				Reason: fmt.Sprintf("rsi_break_overbought_%.0f", s.overbought),
				Tag:    s.Name(),
			})
			holding = false
		}
	}
	return buys, sells
}
