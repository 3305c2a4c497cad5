package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCSVSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "BTCUSDT_1h.csv", `open_time,open,high,low,close,volume,close_time,trades
1000,100,101,99,100.5,12.5,1999,42
2000,100.5,102,100,101,8,2999
3000,101,103,100.5,102,9,3999,17
`)
	src := NewCSVSource(dir)
	ctx := context.Background()

	t.Run("解析含表头文件", func(t *testing.T) {
		candles, err := src.Fetch(ctx, FetchRequest{Symbol: "btcusdt", Interval: "1H"})
		require.NoError(t, err)
		require.Len(t, candles, 3)
		assert.Equal(t, int64(1000), candles[0].OpenTime)
		assert.Equal(t, 100.5, candles[0].Close)
		assert.Equal(t, int64(42), candles[0].Trades)
		assert.Zero(t, candles[1].Trades, "trades 列可缺省")
	})

	t.Run("按区间过滤", func(t *testing.T) {
		candles, err := src.Fetch(ctx, FetchRequest{Symbol: "BTCUSDT", Interval: "1h", Start: 2000, End: 2999})
		require.NoError(t, err)
		require.Len(t, candles, 1)
		assert.Equal(t, int64(2000), candles[0].OpenTime)
	})

	t.Run("limit 截断", func(t *testing.T) {
		candles, err := src.Fetch(ctx, FetchRequest{Symbol: "BTCUSDT", Interval: "1h", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, candles, 2)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := src.Fetch(ctx, FetchRequest{Symbol: "ETHUSDT", Interval: "1h"})
		assert.Error(t, err)
	})

	t.Run("数据行脏值报错", func(t *testing.T) {
		writeCSV(t, dir, "BAD_1h.csv", "1000,abc,101,99,100,1,1999\n")
		_, err := src.Fetch(ctx, FetchRequest{Symbol: "BAD", Interval: "1h"})
		assert.Error(t, err)
	})

	t.Run("context 取消即中断", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := src.Fetch(cancelled, FetchRequest{Symbol: "BTCUSDT", Interval: "1h"})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("缺参数被拒", func(t *testing.T) {
		_, err := src.Fetch(ctx, FetchRequest{Symbol: "BTCUSDT"})
		assert.Error(t, err)
	})
}
