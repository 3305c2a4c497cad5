package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/markcheno/go-talib"

	"sable/internal/engine"
	"sable/internal/market"
)

// TalibProvider 按声明式名称计算指标序列，输出与时间轴逐位对齐。
// 名称语法：
//
//	sma:20 / ema:50 / rsi:14
//	macd:12,26,9 / macd_signal:12,26,9 / macd_hist:12,26,9
type TalibProvider struct{}

func NewTalibProvider() *TalibProvider { return &TalibProvider{} }

func (p *TalibProvider) Compute(series *market.Series, names []string) (engine.Indicators, error) {
	out := make(engine.Indicators, len(names))
	closes := series.Closes()
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := out[name]; ok {
			continue
		}
		values, err := computeOne(closes, name)
		if err != nil {
			return nil, err
		}
		out[name] = values
	}
	return out, nil
}

func computeOne(closes []float64, name string) ([]float64, error) {
	kind, argStr, _ := strings.Cut(name, ":")
	args, err := parseArgs(argStr)
	if err != nil {
		return nil, fmt.Errorf("指标 %s 参数非法: %w", name, err)
	}
	switch kind {
	case "sma":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return guardPeriod(closes, args[0], func() []float64 { return talib.Sma(closes, args[0]) })
	case "ema":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return guardPeriod(closes, args[0], func() []float64 { return talib.Ema(closes, args[0]) })
	case "rsi":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		return guardPeriod(closes, args[0], func() []float64 { return talib.Rsi(closes, args[0]) })
	case "macd", "macd_signal", "macd_hist":
		if err := wantArgs(name, args, 3); err != nil {
			return nil, err
		}
		need := args[1] + args[2]
		return guardPeriod(closes, need, func() []float64 {
			macd, signal, hist := talib.Macd(closes, args[0], args[1], args[2])
			switch kind {
			case "macd_signal":
				return signal
			case "macd_hist":
				return hist
			default:
				return macd
			}
		})
	default:
		return nil, fmt.Errorf("未知指标: %s", name)
	}
}

func guardPeriod(closes []float64, period int, fn func() []float64) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("周期必须为正, got %d", period)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("时间轴为空，无法计算指标")
	}
	if len(closes) < period {
		return nil, fmt.Errorf("K 线数量 %d 不足以计算周期 %d 的指标", len(closes), period)
	}
	return fn(), nil
}

func parseArgs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func wantArgs(name string, args []int, n int) error {
	if len(args) != n {
		return fmt.Errorf("指标 %s 需要 %d 个参数, got %d", name, n, len(args))
	}
	return nil
}
