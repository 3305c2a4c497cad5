package report

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/engine"
)

func sampleResult() *engine.Result {
	order := engine.Order{
		ID:         1,
		Side:       engine.SideLong,
		Status:     engine.StatusClosed,
		OpenTime:   1_700_000_000_000,
		CloseTime:  1_700_086_400_000,
		OpenPrice:  decimal.NewFromInt(100),
		ClosePrice: decimal.NewFromInt(110),
		Quantity:   decimal.NewFromInt(2),
		Profit:     decimal.NewFromInt(20),
		ProfitRate: decimal.NewFromFloat(0.1),
	}
	return &engine.Result{
		Orders: []engine.Order{order},
		Stats: engine.Stats{
			TotalOrders: 1,
			ClosedCount: 1,
			Wins:        1,
			WinRate:     1,
			TotalProfit: decimal.NewFromInt(20),
		},
		Curve: engine.Curve{
			{Time: 1_700_000_000_000, Equity: decimal.NewFromInt(1000), NetValue: 1},
			{Time: 1_700_086_400_000, Equity: decimal.NewFromInt(1020), NetValue: 1.02},
		},
		Performance: engine.Performance{
			AbsoluteReturn:      engine.Defined(20),
			CumulativeReturnPct: engine.Defined(2),
			ProfitFactor:        engine.Undefined("没有亏损订单"),
			Notes:               []string{"profit_factor: 没有亏损订单"},
		},
		Vector: engine.VectorResult{Trades: 1, FinalEquity: 1020},
	}
}

func TestRenderText(t *testing.T) {
	out := RenderText("BTCUSDT 1h", sampleResult(), TextOptions{})

	t.Run("标题与统计", func(t *testing.T) {
		assert.Contains(t, out, "BTCUSDT 1h")
		assert.Contains(t, out, "订单总数: 1")
		assert.Contains(t, out, "胜率 100.00%")
	})

	t.Run("已定义指标保留两位小数", func(t *testing.T) {
		assert.Contains(t, out, "绝对收益: 20.00")
		assert.Contains(t, out, "累计收益率%: 2.00")
	})

	t.Run("未定义指标标注原因而不是打印零", func(t *testing.T) {
		assert.Contains(t, out, "盈亏比(Profit Factor): 未定义（没有亏损订单）")
		assert.NotContains(t, out, "盈亏比(Profit Factor): 0.00")
	})

	t.Run("notes 原样呈现", func(t *testing.T) {
		assert.Contains(t, out, "- profit_factor: 没有亏损订单")
	})

	t.Run("默认不含逐单明细", func(t *testing.T) {
		assert.NotContains(t, out, "订单明细")
	})
}

func TestRenderText_Extended(t *testing.T) {
	out := RenderText("BTCUSDT 1h", sampleResult(), TextOptions{Extended: true})
	require.Contains(t, out, "订单明细")
	assert.Contains(t, out, "#1 long")
	// profit_rate 0.1 -> 10.00%
	assert.Contains(t, out, "(10.00%)")
}

func TestRenderText_Degraded(t *testing.T) {
	res := sampleResult()
	res.Performance.Degraded = true
	out := RenderText("x", res, TextOptions{})
	assert.True(t, strings.Contains(out, "无资金曲线"))
}
