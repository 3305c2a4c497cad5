package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CreateOrder(t *testing.T) {
	l := NewLedger(0.001)

	t.Run("成功建仓扣除手续费", func(t *testing.T) {
		o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
			decimal.NewFromInt(10), decimal.NewFromInt(2000))
		require.NoError(t, err)
		assert.Equal(t, int64(1), o.ID)
		assert.Equal(t, StatusFilled, o.Status)
		assert.True(t, o.OpenFee.Equal(decimal.NewFromInt(1)), "fee=1000*0.001")
		assert.True(t, o.OpenCost().Equal(decimal.NewFromInt(1001)))
	})

	t.Run("订单 ID 递增", func(t *testing.T) {
		o, err := l.CreateOrder(Signal{Time: 2000, Price: 100}, SideLong,
			decimal.NewFromInt(1), decimal.NewFromInt(2000))
		require.NoError(t, err)
		assert.Equal(t, int64(2), o.ID)
	})

	t.Run("资金不足返回哨兵错误", func(t *testing.T) {
		_, err := l.CreateOrder(Signal{Time: 3000, Price: 100}, SideLong,
			decimal.NewFromInt(100), decimal.NewFromInt(500))
		assert.ErrorIs(t, err, ErrInsufficientCapital)
	})

	t.Run("手续费压线也算不足", func(t *testing.T) {
		// 名义 1000 + 手续费 1 > 可用 1000
		_, err := l.CreateOrder(Signal{Time: 4000, Price: 100}, SideLong,
			decimal.NewFromInt(10), decimal.NewFromInt(1000))
		assert.ErrorIs(t, err, ErrInsufficientCapital)
	})

	t.Run("信号缺时间戳被拒", func(t *testing.T) {
		_, err := l.CreateOrder(Signal{Price: 100}, SideLong,
			decimal.NewFromInt(1), decimal.NewFromInt(1000))
		assert.Error(t, err)
	})

	t.Run("数量非正被拒", func(t *testing.T) {
		_, err := l.CreateOrder(Signal{Time: 5000, Price: 100}, SideLong,
			decimal.Zero, decimal.NewFromInt(1000))
		assert.Error(t, err)
	})
}

func TestLedger_CloseOrder(t *testing.T) {
	l := NewLedger(0.001)
	o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideLong,
		decimal.NewFromInt(10), decimal.NewFromInt(5000))
	require.NoError(t, err)

	t.Run("平仓计算已实现盈亏", func(t *testing.T) {
		closed, err := l.CloseOrder(o.ID, Signal{Time: 2000, Price: 110, Reason: "tp"})
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, closed.Status)
		// profit = (110-100)*10 - 1 - 1.1 = 97.9
		assert.True(t, closed.Profit.Equal(decimal.NewFromFloat(97.9)), "got %s", closed.Profit)
		assert.Equal(t, "tp", closed.Meta["close_reason"])
	})

	t.Run("重复平仓报错", func(t *testing.T) {
		_, err := l.CloseOrder(o.ID, Signal{Time: 3000, Price: 120})
		assert.Error(t, err)
	})

	t.Run("不存在的订单报错", func(t *testing.T) {
		_, err := l.CloseOrder(999, Signal{Time: 3000, Price: 120})
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestLedger_CloseProceeds(t *testing.T) {
	l := NewLedger(0)
	o, err := l.CreateOrder(Signal{Time: 1000, Price: 50}, SideLong,
		decimal.NewFromInt(2), decimal.NewFromInt(1000))
	require.NoError(t, err)
	closed, err := l.CloseOrder(o.ID, Signal{Time: 2000, Price: 60})
	require.NoError(t, err)
	// 开仓占用 100 + 盈利 20
	assert.True(t, closed.CloseProceeds().Equal(decimal.NewFromInt(120)))
}

func TestLedger_OldestOpen(t *testing.T) {
	l := NewLedger(0)
	first, err := l.CreateOrder(Signal{Time: 1000, Price: 10}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.CreateOrder(Signal{Time: 2000, Price: 10}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)

	oldest, ok := l.OldestOpen()
	require.True(t, ok)
	assert.Equal(t, first.ID, oldest.ID)

	_, err = l.CloseOrder(first.ID, Signal{Time: 3000, Price: 11})
	require.NoError(t, err)
	oldest, ok = l.OldestOpen()
	require.True(t, ok)
	assert.Equal(t, int64(2), oldest.ID)
}

func TestLedger_Statistics(t *testing.T) {
	l := NewLedger(0)

	t.Run("空账本全为零", func(t *testing.T) {
		st := l.Statistics()
		assert.Zero(t, st.TotalOrders)
		assert.Zero(t, st.WinRate)
	})

	win, err := l.CreateOrder(Signal{Time: 1000, Price: 10}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.CloseOrder(win.ID, Signal{Time: 2000, Price: 12})
	require.NoError(t, err)

	loss, err := l.CreateOrder(Signal{Time: 3000, Price: 10}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.CloseOrder(loss.ID, Signal{Time: 4000, Price: 9})
	require.NoError(t, err)

	flat, err := l.CreateOrder(Signal{Time: 5000, Price: 10}, SideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = l.CloseOrder(flat.ID, Signal{Time: 6000, Price: 10})
	require.NoError(t, err)

	t.Run("零盈亏计为胜", func(t *testing.T) {
		st := l.Statistics()
		assert.Equal(t, 3, st.ClosedCount)
		assert.Equal(t, 2, st.Wins)
		assert.Equal(t, 1, st.Losses)
		assert.InDelta(t, 2.0/3.0, st.WinRate, 1e-9)
	})
}

func TestOrder_ShortSide(t *testing.T) {
	l := NewLedger(0)
	o, err := l.CreateOrder(Signal{Time: 1000, Price: 100}, SideShort,
		decimal.NewFromInt(1), decimal.NewFromInt(1000))
	require.NoError(t, err)
	closed, err := l.CloseOrder(o.ID, Signal{Time: 2000, Price: 90})
	require.NoError(t, err)
	// 空头价格下跌为盈利
	assert.True(t, closed.Profit.Equal(decimal.NewFromInt(10)))
}
