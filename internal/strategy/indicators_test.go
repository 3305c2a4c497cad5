package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/market"
)

func seriesFromCloses(t *testing.T, closes ...float64) *market.Series {
	t.Helper()
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		ts := int64((i + 1) * 60_000)
		candles[i] = market.Candle{OpenTime: ts - 60_000, CloseTime: ts, Open: c, High: c, Low: c, Close: c}
	}
	s, err := market.NewSeries(candles)
	require.NoError(t, err)
	return s
}

func TestTalibProvider_Compute(t *testing.T) {
	p := NewTalibProvider()
	series := seriesFromCloses(t, 10, 20, 30, 40, 50)

	t.Run("输出与时间轴等长", func(t *testing.T) {
		ind, err := p.Compute(series, []string{"sma:2", "ema:3", "rsi:3"})
		require.NoError(t, err)
		for name, vals := range ind {
			assert.Len(t, vals, series.Len(), name)
		}
	})

	t.Run("sma 数值", func(t *testing.T) {
		ind, err := p.Compute(series, []string{"sma:2"})
		require.NoError(t, err)
		sma := ind["sma:2"]
		assert.InDelta(t, 15, sma[1], 1e-9)
		assert.InDelta(t, 45, sma[4], 1e-9)
	})

	t.Run("macd 三条线共用参数", func(t *testing.T) {
		long := make([]float64, 0, 60)
		for i := 0; i < 60; i++ {
			long = append(long, 100+float64(i%7))
		}
		ind, err := p.Compute(seriesFromCloses(t, long...), []string{
			"macd:12,26,9", "macd_signal:12,26,9", "macd_hist:12,26,9",
		})
		require.NoError(t, err)
		assert.Len(t, ind, 3)
	})

	t.Run("名称大小写与空白归一", func(t *testing.T) {
		ind, err := p.Compute(series, []string{" SMA:2 "})
		require.NoError(t, err)
		_, ok := ind["sma:2"]
		assert.True(t, ok)
	})
}

func TestTalibProvider_Errors(t *testing.T) {
	p := NewTalibProvider()
	series := seriesFromCloses(t, 10, 20, 30)

	cases := []struct {
		name  string
		query string
	}{
		{"未知指标", "vwap:10"},
		{"参数个数不符", "sma:2,3"},
		{"macd 缺参数", "macd:12,26"},
		{"非数字参数", "sma:abc"},
		{"周期非正", "sma:0"},
		{"数据不足", "sma:10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Compute(series, []string{tc.query})
			assert.Error(t, err)
		})
	}
}
