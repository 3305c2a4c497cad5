package backtest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/config"
	"sable/internal/engine"
	"sable/internal/logger"
)

func TestAvgHoldingHours(t *testing.T) {
	const hour = int64(3_600_000)
	orders := []engine.Order{
		{Status: engine.StatusClosed, OpenTime: 0, CloseTime: 2 * hour},
		{Status: engine.StatusClosed, OpenTime: hour, CloseTime: 5 * hour},
		{Status: engine.StatusFilled, OpenTime: 0},
	}
	// (2 + 4) / 2 = 3 小时，未平仓订单不计入
	assert.InDelta(t, 3.0, avgHoldingHours(orders), 1e-9)
	assert.Zero(t, avgHoldingHours(nil))
}

func sampleEngineResult() *engine.Result {
	const hour = int64(3_600_000)
	return &engine.Result{
		Orders: []engine.Order{
			{Status: engine.StatusClosed, OpenTime: 0, CloseTime: 2 * hour, Profit: decimal.NewFromInt(20)},
		},
		Stats: engine.Stats{TotalOrders: 1, ClosedCount: 1, Wins: 1, WinRate: 1},
		Curve: engine.Curve{
			{Time: 0, Equity: decimal.NewFromInt(1000)},
			{Time: 2 * hour, Equity: decimal.NewFromInt(1020)},
		},
		Performance: engine.Performance{
			AbsoluteReturn:      engine.Defined(20),
			CumulativeReturnPct: engine.Defined(2),
			MaxDrawdown:         engine.Drawdown{Pct: engine.Defined(0)},
		},
	}
}

func TestSummarize(t *testing.T) {
	summary := summarize(sampleEngineResult())
	assert.Equal(t, 1020.0, summary.FinalEquity)
	assert.Equal(t, 20.0, summary.Profit)
	assert.Equal(t, 2.0, summary.ReturnPct)
	assert.Equal(t, 2, summary.Snapshots)
	assert.InDelta(t, 2.0, summary.AvgHoldingHrs, 1e-9)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestEmitReport(t *testing.T) {
	outDir := t.TempDir()
	sim := &Simulator{report: config.ReportConfig{Chart: true, Extended: true, OutputDir: outDir}}
	runCfg := RunConfig{Symbol: "BTCUSDT", Timeframe: "1h", Profile: "sma_fast"}

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)

	sim.emitReport("run-1", runCfg, sampleEngineResult())

	t.Run("文本报告进日志", func(t *testing.T) {
		out := buf.String()
		assert.Contains(t, out, "BTCUSDT 1h sma_fast")
		assert.Contains(t, out, "订单总数: 1")
		assert.Contains(t, out, "订单明细", "extended 打开时附带逐单明细")
	})

	t.Run("图表落盘到 output_dir", func(t *testing.T) {
		html, err := os.ReadFile(filepath.Join(outDir, "run-1.html"))
		require.NoError(t, err)
		assert.Contains(t, string(html), "echarts")
	})
}

func TestEmitReport_NoChartFlags(t *testing.T) {
	outDir := t.TempDir()
	sim := &Simulator{report: config.ReportConfig{OutputDir: outDir}}

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)

	sim.emitReport("run-2", RunConfig{Symbol: "ETHUSDT", Timeframe: "4h"}, sampleEngineResult())

	assert.Contains(t, buf.String(), "ETHUSDT 4h")
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "未开启 chart/png 时不产生文件")
}
