package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_New(t *testing.T) {
	t.Run("内置策略已注册", func(t *testing.T) {
		names := Names()
		assert.Contains(t, names, "sma_cross")
		assert.Contains(t, names, "rsi_reversal")
		assert.Contains(t, names, "macd_cross")
	})

	t.Run("名称大小写不敏感", func(t *testing.T) {
		s, err := New("SMA_Cross", map[string]any{"fast": 5, "slow": 20})
		require.NoError(t, err)
		assert.Equal(t, "sma_cross", s.Name())
	})

	t.Run("未知策略报错并列出可用项", func(t *testing.T) {
		_, err := New("nope", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sma_cross")
	})

	t.Run("YAML 数字形态参数被收敛", func(t *testing.T) {
		// yaml 解码可能给出 float64
		s, err := New("sma_cross", map[string]any{"fast": float64(5), "slow": int64(20)})
		require.NoError(t, err)
		assert.Equal(t, []string{"sma:5", "sma:20"}, s.RequiredIndicators())
	})

	t.Run("参数非法报错", func(t *testing.T) {
		_, err := New("sma_cross", map[string]any{"fast": 30, "slow": 10})
		assert.Error(t, err)
	})
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("sma_cross", NewSMACross)
	})
	assert.Panics(t, func() {
		Register("", NewSMACross)
	})
}
