package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sable/internal/market"
)

func testSeries(t *testing.T, closeTimes ...int64) *market.Series {
	t.Helper()
	candles := make([]market.Candle, len(closeTimes))
	for i, ts := range closeTimes {
		candles[i] = market.Candle{
			OpenTime:  ts - 1000,
			CloseTime: ts,
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100,
		}
	}
	series, err := market.NewSeries(candles)
	require.NoError(t, err)
	return series
}

func TestAlignSignals(t *testing.T) {
	series := testSeries(t, 1000, 2000, 3000)

	t.Run("精确命中映射到对应下标", func(t *testing.T) {
		enter, exit, err := AlignSignals(series,
			[]Signal{{Time: 1000, Price: 100}},
			[]Signal{{Time: 3000, Price: 100}})
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, false}, enter)
		assert.Equal(t, []bool{false, false, true}, exit)
	})

	t.Run("空信号列表返回全 false", func(t *testing.T) {
		enter, exit, err := AlignSignals(series, nil, nil)
		require.NoError(t, err)
		assert.Len(t, enter, 3)
		assert.Len(t, exit, 3)
		for i := range enter {
			assert.False(t, enter[i])
			assert.False(t, exit[i])
		}
	})

	t.Run("未命中时间轴报错而不吸附", func(t *testing.T) {
		_, _, err := AlignSignals(series, []Signal{{Time: 1500, Price: 100}}, nil)
		assert.ErrorIs(t, err, ErrTimestampNotInTimeline)
		assert.Contains(t, err.Error(), "1500")
	})

	t.Run("畸形信号被拒", func(t *testing.T) {
		_, _, err := AlignSignals(series, []Signal{{Time: 1000}}, nil)
		assert.Error(t, err)
	})
}
