package engine

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curveOf(equities ...float64) Curve {
	curve := make(Curve, len(equities))
	for i, e := range equities {
		curve[i] = EquityPoint{
			Time:   int64((i + 1) * millisPerDay),
			Equity: decimal.NewFromFloat(e),
		}
	}
	return curve
}

func TestValue_JSON(t *testing.T) {
	t.Run("未定义序列化为 null", func(t *testing.T) {
		raw, err := json.Marshal(Undefined("分母为零"))
		require.NoError(t, err)
		assert.Equal(t, "null", string(raw))
	})

	t.Run("round trip", func(t *testing.T) {
		raw, err := json.Marshal(Defined(3.14))
		require.NoError(t, err)
		var v Value
		require.NoError(t, json.Unmarshal(raw, &v))
		got, ok := v.Float64()
		assert.True(t, ok)
		assert.InDelta(t, 3.14, got, 1e-9)

		var null Value
		require.NoError(t, json.Unmarshal([]byte("null"), &null))
		assert.False(t, null.Defined())
	})
}

func TestMaxDrawdown(t *testing.T) {
	t.Run("峰谷扫描", func(t *testing.T) {
		dd := MaxDrawdown(curveOf(10000, 12000, 10800, 12500))
		pct, ok := dd.Pct.Float64()
		require.True(t, ok)
		// (10800-12000)/12000 = -10%
		assert.InDelta(t, -10.0, pct, 1e-9)
		assert.Equal(t, int64(2*millisPerDay), dd.PeakTS)
		assert.Equal(t, int64(3*millisPerDay), dd.TroughTS)
		recovery, ok := dd.Recovery.Float64()
		require.True(t, ok)
		assert.InDelta(t, 1.0, recovery, 1e-9)
	})

	t.Run("单调不减曲线回撤为零", func(t *testing.T) {
		dd := MaxDrawdown(curveOf(100, 110, 120))
		pct, ok := dd.Pct.Float64()
		require.True(t, ok)
		assert.Zero(t, pct)
		assert.False(t, dd.Recovery.Defined())
	})

	t.Run("区间内未恢复", func(t *testing.T) {
		dd := MaxDrawdown(curveOf(100, 80, 90))
		assert.False(t, dd.Recovery.Defined())
		assert.Equal(t, "区间内未恢复", dd.Recovery.Reason())
	})

	t.Run("空曲线未定义", func(t *testing.T) {
		dd := MaxDrawdown(nil)
		assert.False(t, dd.Pct.Defined())
	})
}

func TestProfitFactor(t *testing.T) {
	closedOrder := func(profit float64) Order {
		return Order{Status: StatusClosed, Profit: decimal.NewFromFloat(profit)}
	}

	t.Run("无平仓单未定义", func(t *testing.T) {
		assert.False(t, ProfitFactor(nil).Defined())
	})

	t.Run("无亏损单未定义而不是无穷", func(t *testing.T) {
		v := ProfitFactor([]Order{closedOrder(10), closedOrder(5)})
		assert.False(t, v.Defined())
		assert.Equal(t, "没有亏损订单", v.Reason())
	})

	t.Run("正常比值", func(t *testing.T) {
		v := ProfitFactor([]Order{closedOrder(30), closedOrder(-10)})
		got, ok := v.Float64()
		require.True(t, ok)
		assert.InDelta(t, 3.0, got, 1e-9)
	})

	t.Run("只有亏损为零", func(t *testing.T) {
		v := ProfitFactor([]Order{closedOrder(-10)})
		got, ok := v.Float64()
		require.True(t, ok)
		assert.Zero(t, got)
	})
}

func TestPayoffRatio(t *testing.T) {
	closedOrder := func(profit float64) Order {
		return Order{Status: StatusClosed, Profit: decimal.NewFromFloat(profit)}
	}
	v := PayoffRatio([]Order{closedOrder(20), closedOrder(10), closedOrder(-5)})
	got, ok := v.Float64()
	require.True(t, ok)
	// 平均盈利 15 / 平均亏损 5
	assert.InDelta(t, 3.0, got, 1e-9)

	assert.False(t, PayoffRatio([]Order{closedOrder(10)}).Defined())
}

func TestSharpeRatio(t *testing.T) {
	t.Run("波动率为零未定义", func(t *testing.T) {
		v := SharpeRatio(Defined(10), Defined(0), 3)
		assert.False(t, v.Defined())
	})

	t.Run("正常计算", func(t *testing.T) {
		v := SharpeRatio(Defined(13), Defined(5), 3)
		got, ok := v.Float64()
		require.True(t, ok)
		assert.InDelta(t, 2.0, got, 1e-9)
	})
}

func TestAnnualVolatilityPct(t *testing.T) {
	assert.False(t, AnnualVolatilityPct(curveOf(100), 365).Defined())
	assert.False(t, AnnualVolatilityPct(curveOf(100, 110, 120), 0).Defined())

	v := AnnualVolatilityPct(curveOf(100, 110, 99, 105), 365)
	assert.True(t, v.Defined())
}

func TestComputePerformance_RoundTrip(t *testing.T) {
	// 10000 本金，单笔 /100 买 10 个再以 110 卖出：盈利 100
	l := NewLedger(0)
	o, err := l.CreateOrder(Signal{Time: millisPerDay, Price: 100}, SideLong,
		decimal.NewFromInt(10), decimal.NewFromInt(10000))
	require.NoError(t, err)
	_, err = l.CloseOrder(o.ID, Signal{Time: 2 * millisPerDay, Price: 110})
	require.NoError(t, err)

	curve := Curve{
		{Time: millisPerDay, Equity: decimal.NewFromInt(10000)},
		{Time: 2 * millisPerDay, Equity: decimal.NewFromInt(10100)},
	}
	p := ComputePerformance(PerfInput{
		Curve:           curve,
		Orders:          l.Orders(),
		InitialCapital:  decimal.NewFromInt(10000),
		RiskFreeRatePct: 3,
		DurationDays:    1,
		BarsPerYear:     365,
	})

	abs, ok := p.AbsoluteReturn.Float64()
	require.True(t, ok)
	assert.InDelta(t, 100, abs, 1e-9)
	assert.False(t, p.Degraded)

	cum, ok := p.CumulativeReturnPct.Float64()
	require.True(t, ok)
	assert.InDelta(t, 1.0, cum, 1e-9)

	// 无亏损单：profit factor 未定义且出现在 notes 中
	assert.False(t, p.ProfitFactor.Defined())
	assert.Contains(t, p.Notes, "profit_factor: 没有亏损订单")

	winRate, ok := p.WinRatePct.Float64()
	require.True(t, ok)
	assert.InDelta(t, 100, winRate, 1e-9)
}

func TestComputePerformance_Degraded(t *testing.T) {
	l := NewLedger(0)
	o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.CloseOrder(o.ID, Signal{Time: 2000, Price: 90})
	require.NoError(t, err)

	p := ComputePerformance(PerfInput{
		Orders:         l.Orders(),
		InitialCapital: decimal.NewFromInt(1000),
		DurationDays:   1,
	})
	assert.True(t, p.Degraded)
	abs, ok := p.AbsoluteReturn.Float64()
	require.True(t, ok)
	assert.InDelta(t, -10, abs, 1e-9)
	assert.False(t, p.MaxDrawdown.Pct.Defined())
}

func TestCostPct(t *testing.T) {
	t.Run("总盈亏非正未定义", func(t *testing.T) {
		v := CostPct(Stats{TotalProfit: decimal.NewFromInt(-5), TotalCommission: decimal.NewFromInt(1)})
		assert.False(t, v.Defined())
	})

	t.Run("正常比值", func(t *testing.T) {
		v := CostPct(Stats{TotalProfit: decimal.NewFromInt(100), TotalCommission: decimal.NewFromInt(2)})
		got, ok := v.Float64()
		require.True(t, ok)
		assert.InDelta(t, 2.0, got, 1e-9)
	})
}
