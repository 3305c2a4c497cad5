package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/market"
)

func priceSeries(t *testing.T, closes ...float64) *market.Series {
	t.Helper()
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		ts := int64((i + 1) * 1000)
		candles[i] = market.Candle{OpenTime: ts - 1000, CloseTime: ts, Open: c, High: c, Low: c, Close: c}
	}
	series, err := market.NewSeries(candles)
	require.NoError(t, err)
	return series
}

func TestBuildCurve(t *testing.T) {
	initial := decimal.NewFromInt(1000)

	t.Run("无订单时净值恒等于初始资金", func(t *testing.T) {
		series := priceSeries(t, 100, 110, 120)
		curve, err := BuildCurve(series, nil, initial)
		require.NoError(t, err)
		require.Len(t, curve, 3)
		for _, p := range curve {
			assert.True(t, p.Equity.Equal(initial))
			assert.InDelta(t, 1.0, p.NetValue, 1e-9)
		}
	})

	t.Run("持仓逐点盯市", func(t *testing.T) {
		series := priceSeries(t, 100, 110, 120)
		l := NewLedger(0)
		_, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
			decimal.NewFromInt(5), initial)
		require.NoError(t, err)

		curve, err := BuildCurve(series, l.Orders(), initial)
		require.NoError(t, err)
		require.Len(t, curve, 3)
		// t=1000: cash=500, pos=5*100=500
		assert.True(t, curve[0].Equity.Equal(decimal.NewFromInt(1000)))
		// t=2000: pos=5*110=550
		assert.True(t, curve[1].Equity.Equal(decimal.NewFromInt(1050)))
		// t=3000: pos=5*120=600
		assert.True(t, curve[2].Equity.Equal(decimal.NewFromInt(1100)))
	})

	t.Run("恒等式 equity=cash+position", func(t *testing.T) {
		series := priceSeries(t, 100, 90, 95, 105)
		l := NewLedger(0.001)
		o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
			decimal.NewFromInt(3), initial)
		require.NoError(t, err)
		_, err = l.CloseOrder(o.ID, Signal{Time: 3000, Price: 95})
		require.NoError(t, err)

		curve, err := BuildCurve(series, l.Orders(), initial)
		require.NoError(t, err)
		for i, p := range curve {
			assert.True(t, p.Equity.Equal(p.Cash.Add(p.PositionValue)),
				"point %d: equity=%s cash=%s pos=%s", i, p.Equity, p.Cash, p.PositionValue)
		}
	})

	t.Run("平仓后现金回流", func(t *testing.T) {
		series := priceSeries(t, 100, 110)
		l := NewLedger(0)
		o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
			decimal.NewFromInt(5), initial)
		require.NoError(t, err)
		_, err = l.CloseOrder(o.ID, Signal{Time: 2000, Price: 110})
		require.NoError(t, err)

		curve, err := BuildCurve(series, l.Orders(), initial)
		require.NoError(t, err)
		final := curve[1]
		assert.True(t, final.PositionValue.IsZero())
		assert.True(t, final.Cash.Equal(decimal.NewFromInt(1050)))
	})

	t.Run("同一时刻先平后开", func(t *testing.T) {
		series := priceSeries(t, 100, 100)
		l := NewLedger(0)
		first, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
			decimal.NewFromInt(9), initial)
		require.NoError(t, err)
		// t=2000 平掉旧仓并立即用回流资金开新仓
		_, err = l.CloseOrder(first.ID, Signal{Time: 2000, Price: 100})
		require.NoError(t, err)
		_, err = l.CreateOrder(Signal{Time: 2000, Price: 100}, SideLong,
			decimal.NewFromInt(9), initial)
		require.NoError(t, err)

		curve, err := BuildCurve(series, l.Orders(), initial)
		require.NoError(t, err)
		final := curve[1]
		assert.False(t, final.Cash.IsNegative(), "先平后开不应出现负现金: %s", final.Cash)
		assert.True(t, final.Equity.Equal(initial))
	})

	t.Run("空时间轴返回空曲线", func(t *testing.T) {
		series, err := market.NewSeries(nil)
		require.NoError(t, err)
		curve, err := BuildCurve(series, nil, initial)
		require.NoError(t, err)
		assert.Empty(t, curve)
	})

	t.Run("初始资金非正报错", func(t *testing.T) {
		series := priceSeries(t, 100)
		_, err := BuildCurve(series, nil, decimal.Zero)
		assert.Error(t, err)
	})
}
