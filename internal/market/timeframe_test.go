package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, time.Hour, tf.Duration)

	_, err = ParseTimeframe("3h")
	assert.Error(t, err)
}

func TestTimeframe_AlignRange(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	step := tf.DurationMillis()

	t.Run("对齐到网格", func(t *testing.T) {
		start, end := tf.AlignRange(step+1234, 3*step+5678)
		assert.Equal(t, step, start)
		assert.Equal(t, 3*step, end)
	})

	t.Run("start>end 自动交换", func(t *testing.T) {
		start, end := tf.AlignRange(3*step, step)
		assert.Equal(t, step, start)
		assert.Equal(t, 3*step, end)
	})
}

func TestTimeframe_ExpectedCandles(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	step := tf.DurationMillis()

	assert.Equal(t, int64(3), tf.ExpectedCandles(step, 3*step))
	assert.Equal(t, int64(1), tf.ExpectedCandles(step, step))
	assert.Zero(t, tf.ExpectedCandles(3*step, step))
}

func TestSupportedTimeframes(t *testing.T) {
	keys := SupportedTimeframes()
	assert.Contains(t, keys, "1m")
	assert.Contains(t, keys, "1d")
	assert.Len(t, keys, 8)
}
