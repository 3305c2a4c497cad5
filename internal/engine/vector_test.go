package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateVector(t *testing.T) {
	t.Run("全进全出一个来回", func(t *testing.T) {
		closes := []float64{100, 110, 120}
		enter := []bool{true, false, false}
		exit := []bool{false, false, true}
		res, err := SimulateVector(closes, enter, exit, 1000, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Trades)
		assert.InDelta(t, 1200, res.FinalEquity, 1e-9)
	})

	t.Run("手续费双边收取", func(t *testing.T) {
		closes := []float64{100, 100}
		enter := []bool{true, false}
		exit := []bool{false, true}
		res, err := SimulateVector(closes, enter, exit, 1000, 0.01)
		require.NoError(t, err)
		// 买入扣 10，990/100=9.9 个；卖出 990 再扣 9.9
		assert.InDelta(t, 980.1, res.FinalEquity, 1e-9)
	})

	t.Run("持仓中的 enter 被忽略", func(t *testing.T) {
		closes := []float64{100, 100, 100}
		enter := []bool{true, true, false}
		exit := []bool{false, false, true}
		res, err := SimulateVector(closes, enter, exit, 1000, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Trades)
	})

	t.Run("空仓中的 exit 被忽略", func(t *testing.T) {
		closes := []float64{100, 100}
		enter := []bool{false, false}
		exit := []bool{true, true}
		res, err := SimulateVector(closes, enter, exit, 1000, 0)
		require.NoError(t, err)
		assert.Zero(t, res.Trades)
		assert.InDelta(t, 1000, res.FinalEquity, 1e-9)
	})

	t.Run("长度不一致报错", func(t *testing.T) {
		_, err := SimulateVector([]float64{100}, []bool{true, false}, []bool{false}, 1000, 0)
		assert.Error(t, err)
	})

	t.Run("非法收盘价报错", func(t *testing.T) {
		_, err := SimulateVector([]float64{0}, []bool{false}, []bool{false}, 1000, 0)
		assert.Error(t, err)
	})
}
