package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusClosed    OrderStatus = "closed"
	StatusCancelled OrderStatus = "cancelled"
)

var (
	// ErrInsufficientCapital 表示可用资金不足以建仓；编排器对单个信号可恢复地跳过。
	ErrInsufficientCapital = errors.New("可用资金不足")
	// ErrOrderNotFound 表示按 ID 找不到订单；平仓从不静默吞掉这种情况。
	ErrOrderNotFound = errors.New("订单不存在")
)

// Order 记录一笔模拟仓位的完整生命周期。金额字段全部使用 decimal，
// 开平仓过渡期间的簿记不引入浮点误差。
type Order struct {
	ID         int64             `json:"id"`
	Tag        string            `json:"tag,omitempty"`
	Side       Side              `json:"side"`
	Status     OrderStatus       `json:"status"`
	OpenTime   int64             `json:"open_time"`
	OpenPrice  decimal.Decimal   `json:"open_price"`
	Quantity   decimal.Decimal   `json:"quantity"`
	OpenFee    decimal.Decimal   `json:"open_fee"`
	CloseTime  int64             `json:"close_time,omitempty"`
	ClosePrice decimal.Decimal   `json:"close_price,omitempty"`
	CloseFee   decimal.Decimal   `json:"close_fee,omitempty"`
	Profit     decimal.Decimal   `json:"profit,omitempty"`
	ProfitRate decimal.Decimal   `json:"profit_rate,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// OpenNotional 返回开仓名义金额 open_price*quantity。
func (o Order) OpenNotional() decimal.Decimal {
	return o.OpenPrice.Mul(o.Quantity)
}

// OpenCost 返回开仓占用的现金（名义金额 + 开仓手续费）。
func (o Order) OpenCost() decimal.Decimal {
	return o.OpenNotional().Add(o.OpenFee)
}

// UnrealizedPnL 返回按给定价格盯市的浮动盈亏（已扣除开仓手续费）。
func (o Order) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(o.OpenPrice)
	if o.Side == SideShort {
		diff = o.OpenPrice.Sub(price)
	}
	return diff.Mul(o.Quantity).Sub(o.OpenFee)
}

// MarketValue 返回持仓按给定价格的盯市价值。多头恰好等于 quantity*price；
// 空头把开仓占用的保证金与反向价差一并计入，保证 equity = cash + Σvalue 恒成立。
func (o Order) MarketValue(price decimal.Decimal) decimal.Decimal {
	return o.OpenCost().Add(o.UnrealizedPnL(price))
}

// CloseProceeds 返回平仓时回流现金：开仓占用 + 已实现盈亏。
// 只对已平仓订单有意义。
func (o Order) CloseProceeds() decimal.Decimal {
	return o.OpenCost().Add(o.Profit)
}

// Stats 汇总账本的订单口径统计。
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	OpenCount       int             `json:"open_count"`
	ClosedCount     int             `json:"closed_count"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	WinRate         float64         `json:"win_rate"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// Ledger 是全部模拟仓位的唯一事实来源。
// 订单 ID 按创建顺序递增分配，保证同一输入下字节级可复现。
type Ledger struct {
	commissionRate decimal.Decimal
	orders         map[int64]*Order
	seq            []int64
	nextID         int64
}

func NewLedger(commissionRate float64) *Ledger {
	return &Ledger{
		commissionRate: decimal.NewFromFloat(commissionRate),
		orders:         make(map[int64]*Order),
		nextID:         1,
	}
}

// CreateOrder 依据开仓信号建仓。signal 缺时间戳或价格、数量非正、
// 可用资金不足，均为显式错误而非静默忽略。
func (l *Ledger) CreateOrder(sig Signal, side Side, qty, available decimal.Decimal) (Order, error) {
	if err := sig.Validate(); err != nil {
		return Order{}, fmt.Errorf("开仓信号非法: %w", err)
	}
	if side != SideLong && side != SideShort {
		return Order{}, fmt.Errorf("未知方向: %q", side)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return Order{}, fmt.Errorf("开仓数量必须为正, got %s", qty)
	}
	if available.LessThanOrEqual(decimal.Zero) {
		return Order{}, fmt.Errorf("%w: 可用资金 %s 非正 (signal time=%s)",
			ErrInsufficientCapital, available, formatTS(sig.Time))
	}
	price := decimal.NewFromFloat(sig.Price)
	notional := price.Mul(qty)
	fee := notional.Mul(l.commissionRate)
	if notional.Add(fee).GreaterThan(available) {
		return Order{}, fmt.Errorf("%w: 需要 %s（含手续费 %s），可用 %s (signal time=%s)",
			ErrInsufficientCapital, notional.Add(fee), fee, available, formatTS(sig.Time))
	}

	o := &Order{
		ID:        l.nextID,
		Tag:       sig.Tag,
		Side:      side,
		Status:    StatusFilled,
		OpenTime:  sig.Time,
		OpenPrice: price,
		Quantity:  qty,
		OpenFee:   fee,
		Reason:    sig.Reason,
	}
	l.nextID++
	l.orders[o.ID] = o
	l.seq = append(l.seq, o.ID)
	return *o, nil
}

// CloseOrder 按 ID 平仓：写入平仓价/时间/手续费，按方向符号约定计算已实现盈亏。
// 订单不存在或已平仓都是显式错误。
func (l *Ledger) CloseOrder(id int64, sig Signal) (Order, error) {
	if err := sig.Validate(); err != nil {
		return Order{}, fmt.Errorf("平仓信号非法: %w", err)
	}
	o, ok := l.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: id=%d", ErrOrderNotFound, id)
	}
	if o.Status == StatusClosed {
		return Order{}, fmt.Errorf("订单 %d 已于 %s 平仓", id, formatTS(o.CloseTime))
	}
	price := decimal.NewFromFloat(sig.Price)
	fee := price.Mul(o.Quantity).Mul(l.commissionRate)

	diff := price.Sub(o.OpenPrice)
	if o.Side == SideShort {
		diff = o.OpenPrice.Sub(price)
	}
	profit := diff.Mul(o.Quantity).Sub(o.OpenFee).Sub(fee)

	o.CloseTime = sig.Time
	o.ClosePrice = price
	o.CloseFee = fee
	o.Profit = profit
	if notional := o.OpenNotional(); notional.IsPositive() {
		o.ProfitRate = profit.Div(notional)
	}
	if sig.Reason != "" {
		if o.Meta == nil {
			o.Meta = make(map[string]string, 1)
		}
		o.Meta["close_reason"] = sig.Reason
	}
	o.Status = StatusClosed
	return *o, nil
}

// Order 按 ID 返回订单快照。
func (l *Ledger) Order(id int64) (Order, bool) {
	o, ok := l.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders 返回全部订单快照（创建顺序）。
func (l *Ledger) Orders() []Order {
	out := make([]Order, 0, len(l.seq))
	for _, id := range l.seq {
		out = append(out, *l.orders[id])
	}
	return out
}

// OpenOrders 返回未平仓订单；可选按策略 tag 过滤。
func (l *Ledger) OpenOrders(tags ...string) []Order {
	return l.filter(func(o *Order) bool { return o.Status == StatusFilled }, tags)
}

// ClosedOrders 返回已平仓订单；可选按策略 tag 过滤。
func (l *Ledger) ClosedOrders(tags ...string) []Order {
	return l.filter(func(o *Order) bool { return o.Status == StatusClosed }, tags)
}

func (l *Ledger) filter(keep func(*Order) bool, tags []string) []Order {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	var out []Order
	for _, id := range l.seq {
		o := l.orders[id]
		if !keep(o) {
			continue
		}
		if len(tagSet) > 0 {
			if _, ok := tagSet[o.Tag]; !ok {
				continue
			}
		}
		out = append(out, *o)
	}
	return out
}

// OldestOpen 返回最早开仓的未平仓订单（先开先平）。
func (l *Ledger) OldestOpen() (Order, bool) {
	open := l.OpenOrders()
	if len(open) == 0 {
		return Order{}, false
	}
	sort.SliceStable(open, func(i, j int) bool {
		if open[i].OpenTime != open[j].OpenTime {
			return open[i].OpenTime < open[j].OpenTime
		}
		return open[i].ID < open[j].ID
	})
	return open[0], true
}

// Statistics 汇总统计。胜率只在已平仓订单上计算；空集合返回 0 而不是除零。
// 已实现盈亏恰好为零的订单计为胜。
func (l *Ledger) Statistics() Stats {
	st := Stats{TotalOrders: len(l.seq)}
	for _, id := range l.seq {
		o := l.orders[id]
		switch o.Status {
		case StatusFilled:
			st.OpenCount++
			st.TotalCommission = st.TotalCommission.Add(o.OpenFee)
		case StatusClosed:
			st.ClosedCount++
			st.TotalProfit = st.TotalProfit.Add(o.Profit)
			st.TotalCommission = st.TotalCommission.Add(o.OpenFee).Add(o.CloseFee)
			if o.Profit.IsNegative() {
				st.Losses++
			} else {
				st.Wins++
			}
		}
	}
	if st.ClosedCount > 0 {
		st.WinRate = float64(st.Wins) / float64(st.ClosedCount)
	}
	return st
}
