package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Value 是单个指标的带标签结果：要么已定义，要么带原因的未定义。
// 分母为零等退化输入在这里局部恢复为 Undefined，绝不折算成 0 ——
// 一个被误读为"无风险"的 0 比缺失更糟。
type Value struct {
	val    float64
	ok     bool
	reason string
}

func Defined(v float64) Value            { return Value{val: v, ok: true} }
func Undefined(reason string) Value      { return Value{reason: reason} }
func (v Value) Defined() bool            { return v.ok }
func (v Value) Float64() (float64, bool) { return v.val, v.ok }
func (v Value) Reason() string           { return v.reason }

// Or 返回指标值；未定义时返回给定的兜底值。仅供内部比较使用，
// 展示层必须显式区分未定义。
func (v Value) Or(fallback float64) float64 {
	if v.ok {
		return v.val
	}
	return fallback
}

// MarshalJSON 将未定义指标序列化为 null，原因由 Performance.Notes 给出。
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.val)
}

// UnmarshalJSON 把 null 还原为未定义；原始的未定义原因不落盘。
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Defined(f)
	return nil
}

// Drawdown 描述最大回撤：峰值时间、谷底时间与恢复耗时。
type Drawdown struct {
	Pct      Value `json:"pct"` // 负值，-10 表示 -10%
	PeakTS   int64 `json:"peak_ts,omitempty"`
	TroughTS int64 `json:"trough_ts,omitempty"`
	Recovery Value `json:"recovery_days"`
}

// Performance 是指标引擎的完整输出。Degraded 为 true 表示缺少资金曲线，
// 绝对收益退化为只累计已实现盈亏。
type Performance struct {
	AbsoluteReturn      Value    `json:"absolute_return"`
	CumulativeReturnPct Value    `json:"cumulative_return_pct"`
	AnnualReturnPct     Value    `json:"annual_return_pct"`
	MaxDrawdown         Drawdown `json:"max_drawdown"`
	VolatilityPct       Value    `json:"volatility_pct"`
	Sharpe              Value    `json:"sharpe"`
	Calmar              Value    `json:"calmar"`
	MAR                 Value    `json:"mar"`
	ProfitFactor        Value    `json:"profit_factor"`
	PayoffRatio         Value    `json:"payoff_ratio"`
	TradesPerDay        Value    `json:"trades_per_day"`
	CostPct             Value    `json:"cost_pct"`
	WinRatePct          Value    `json:"win_rate_pct"`
	Degraded            bool     `json:"degraded,omitempty"`
	Notes               []string `json:"notes,omitempty"`
}

// PerfInput 汇集指标计算所需的全部输入。
type PerfInput struct {
	Curve           Curve
	Orders          []Order
	InitialCapital  decimal.Decimal
	RiskFreeRatePct float64
	DurationDays    float64
	BarsPerYear     float64
}

// AbsoluteReturn 优先用资金曲线（已含未实现盈亏）计算 最终净值-初始资金；
// 无曲线时退化为只加总已平仓盈亏，degraded 返回 true。
func AbsoluteReturn(curve Curve, orders []Order, initial decimal.Decimal) (val float64, degraded bool) {
	if final, ok := curve.Final(); ok {
		f, _ := final.Equity.Sub(initial).Float64()
		return f, false
	}
	sum := decimal.Zero
	for _, o := range orders {
		if o.Status == StatusClosed {
			sum = sum.Add(o.Profit)
		}
	}
	f, _ := sum.Float64()
	return f, true
}

// CumulativeReturnPct 返回累计收益率（百分数）。
func CumulativeReturnPct(absolute float64, initial decimal.Decimal) Value {
	initF, _ := initial.Float64()
	if initF <= 0 {
		return Undefined("初始资金非正")
	}
	return Defined(absolute / initF * 100)
}

// AnnualReturnPct 将累计收益率按 365 天线性年化；区间长度非正时未定义。
func AnnualReturnPct(cumulativePct Value, durationDays float64) Value {
	if !cumulativePct.Defined() {
		return Undefined("累计收益未定义")
	}
	if durationDays <= 0 {
		return Undefined(fmt.Sprintf("回测区间长度非正: %.4f 天", durationDays))
	}
	v, _ := cumulativePct.Float64()
	return Defined(v * 365 / durationDays)
}

// MaxDrawdown 对资金曲线做一次运行最大值扫描：逐点计算
// (equity-peak)/peak，取最深处，同时记录峰值与谷底时间戳。
// 单调不减的曲线回撤恰好为 0。
func MaxDrawdown(curve Curve) Drawdown {
	if len(curve) == 0 {
		return Drawdown{
			Pct:      Undefined("资金曲线为空"),
			Recovery: Undefined("资金曲线为空"),
		}
	}
	equities := curve.Equities()
	peak := equities[0]
	peakTS := curve[0].Time
	worst := 0.0
	var worstPeakTS, worstTroughTS int64
	worstPeakVal := 0.0
	troughIdx := -1
	for i, e := range equities {
		if e > peak {
			peak = e
			peakTS = curve[i].Time
		}
		if peak <= 0 {
			continue
		}
		dd := (e - peak) / peak
		if dd < worst {
			worst = dd
			worstPeakTS = peakTS
			worstTroughTS = curve[i].Time
			worstPeakVal = peak
			troughIdx = i
		}
	}
	out := Drawdown{Pct: Defined(worst * 100)}
	if worst == 0 {
		out.Recovery = Undefined("无回撤")
		return out
	}
	out.PeakTS = worstPeakTS
	out.TroughTS = worstTroughTS
	out.Recovery = Undefined("区间内未恢复")
	for i := troughIdx + 1; i < len(equities); i++ {
		if equities[i] >= worstPeakVal {
			days := float64(curve[i].Time-worstTroughTS) / millisPerDay
			out.Recovery = Defined(days)
			break
		}
	}
	return out
}

const millisPerDay = 24 * 60 * 60 * 1000

// AnnualVolatilityPct 用逐 K 线净值收益率的样本标准差乘以 √(年化 K 线数)。
// 少于两个采样点时未定义（而不是 0）。
func AnnualVolatilityPct(curve Curve, barsPerYear float64) Value {
	if len(curve) < 2 {
		return Undefined("资金曲线采样点少于两个")
	}
	if barsPerYear <= 0 {
		return Undefined("无法从时间轴推断 K 线频率")
	}
	equities := curve.Equities()
	returns := make([]float64, 0, len(equities)-1)
	for i := 1; i < len(equities); i++ {
		if equities[i-1] == 0 {
			return Undefined(fmt.Sprintf("第 %d 个采样点净值为零", i-1))
		}
		returns = append(returns, equities[i]/equities[i-1]-1)
	}
	if len(returns) < 2 {
		return Undefined("收益率样本不足")
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return Defined(math.Sqrt(variance) * math.Sqrt(barsPerYear) * 100)
}

// SharpeRatio = (年化收益 - 无风险利率) / 年化波动率。波动率为零或未定义时未定义。
func SharpeRatio(annualPct, volatilityPct Value, riskFreePct float64) Value {
	if !annualPct.Defined() {
		return Undefined("年化收益未定义")
	}
	vol, ok := volatilityPct.Float64()
	if !ok {
		return Undefined("波动率未定义")
	}
	if vol == 0 {
		return Undefined("波动率为零")
	}
	apr, _ := annualPct.Float64()
	return Defined((apr - riskFreePct) / vol)
}

// CalmarRatio = 年化收益 / |最大回撤|。回撤为零时未定义。
func CalmarRatio(annualPct Value, dd Drawdown) Value {
	return ratioOverDrawdown(annualPct, dd, "年化收益")
}

// MARRatio = 累计收益 / |最大回撤|。回撤为零时未定义。
func MARRatio(cumulativePct Value, dd Drawdown) Value {
	return ratioOverDrawdown(cumulativePct, dd, "累计收益")
}

func ratioOverDrawdown(numerator Value, dd Drawdown, what string) Value {
	num, ok := numerator.Float64()
	if !ok {
		return Undefined(what + "未定义")
	}
	mdd, ok := dd.Pct.Float64()
	if !ok {
		return Undefined("最大回撤未定义")
	}
	if mdd == 0 {
		return Undefined("最大回撤为零")
	}
	return Defined(num / math.Abs(mdd))
}

// ProfitFactor = Σ盈利 / |Σ亏损|。无亏损单时未定义（不是无穷也不是零）；
// 有亏损但无盈利时为 0。
func ProfitFactor(orders []Order) Value {
	grossProfit, grossLoss, closed := grossPnL(orders)
	if closed == 0 {
		return Undefined("没有已平仓订单")
	}
	if grossLoss.IsZero() {
		return Undefined("没有亏损订单")
	}
	ratio := grossProfit.Div(grossLoss.Abs())
	f, _ := ratio.Float64()
	return Defined(f)
}

// PayoffRatio = 平均盈利 / |平均亏损|，分母处理同 ProfitFactor。
func PayoffRatio(orders []Order) Value {
	grossProfit, grossLoss, closed := grossPnL(orders)
	if closed == 0 {
		return Undefined("没有已平仓订单")
	}
	wins, losses := 0, 0
	for _, o := range orders {
		if o.Status != StatusClosed {
			continue
		}
		if o.Profit.IsNegative() {
			losses++
		} else {
			wins++
		}
	}
	if losses == 0 {
		return Undefined("没有亏损订单")
	}
	if wins == 0 {
		return Defined(0)
	}
	avgWin := grossProfit.Div(decimal.NewFromInt(int64(wins)))
	avgLoss := grossLoss.Abs().Div(decimal.NewFromInt(int64(losses)))
	if avgLoss.IsZero() {
		return Undefined("平均亏损为零")
	}
	f, _ := avgWin.Div(avgLoss).Float64()
	return Defined(f)
}

func grossPnL(orders []Order) (grossProfit, grossLoss decimal.Decimal, closed int) {
	for _, o := range orders {
		if o.Status != StatusClosed {
			continue
		}
		closed++
		if o.Profit.IsNegative() {
			grossLoss = grossLoss.Add(o.Profit)
		} else {
			grossProfit = grossProfit.Add(o.Profit)
		}
	}
	return grossProfit, grossLoss, closed
}

// TradesPerDay = 已平仓订单数 / 回测天数。
func TradesPerDay(orders []Order, durationDays float64) Value {
	if durationDays <= 0 {
		return Undefined("回测区间长度非正")
	}
	closed := 0
	for _, o := range orders {
		if o.Status == StatusClosed {
			closed++
		}
	}
	return Defined(float64(closed) / durationDays)
}

// CostPct = 总手续费 / |总已实现盈利|。总盈利为零或为负时该比值不再具有
// 成本负担的含义，标记为未定义。
func CostPct(stats Stats) Value {
	if stats.TotalProfit.LessThanOrEqual(decimal.Zero) {
		return Undefined("总已实现盈亏非正")
	}
	f, _ := stats.TotalCommission.Div(stats.TotalProfit).Mul(decimal.NewFromInt(100)).Float64()
	return Defined(f)
}

// ComputePerformance 汇总全部指标。内部全程保留精度，展示层才做 2 位小数
// 的舍入——Calmar 同时依赖年化收益与回撤，中途舍入会叠加误差。
func ComputePerformance(in PerfInput) Performance {
	var p Performance

	absolute, degraded := AbsoluteReturn(in.Curve, in.Orders, in.InitialCapital)
	p.AbsoluteReturn = Defined(absolute)
	p.Degraded = degraded
	if degraded {
		p.Notes = append(p.Notes, "absolute_return: 无资金曲线，仅累计已实现盈亏")
	}

	p.CumulativeReturnPct = CumulativeReturnPct(absolute, in.InitialCapital)
	p.AnnualReturnPct = AnnualReturnPct(p.CumulativeReturnPct, in.DurationDays)
	p.MaxDrawdown = MaxDrawdown(in.Curve)
	p.VolatilityPct = AnnualVolatilityPct(in.Curve, in.BarsPerYear)
	p.Sharpe = SharpeRatio(p.AnnualReturnPct, p.VolatilityPct, in.RiskFreeRatePct)
	p.Calmar = CalmarRatio(p.AnnualReturnPct, p.MaxDrawdown)
	p.MAR = MARRatio(p.CumulativeReturnPct, p.MaxDrawdown)
	p.ProfitFactor = ProfitFactor(in.Orders)
	p.PayoffRatio = PayoffRatio(in.Orders)
	p.TradesPerDay = TradesPerDay(in.Orders, in.DurationDays)

	stats := statsOf(in.Orders)
	p.CostPct = CostPct(stats)
	if stats.ClosedCount > 0 {
		p.WinRatePct = Defined(stats.WinRate * 100)
	} else {
		p.WinRatePct = Defined(0)
	}

	p.Notes = append(p.Notes, collectNotes(&p)...)
	return p
}

func statsOf(orders []Order) Stats {
	st := Stats{TotalOrders: len(orders)}
	for _, o := range orders {
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

// collectNotes 为每个未定义指标生成一条说明，报告层必须原样呈现，
// 避免静默缺失被误读为真实计算值。
func collectNotes(p *Performance) []string {
	var notes []string
	add := func(name string, v Value) {
		if !v.Defined() {
			notes = append(notes, fmt.Sprintf("%s: %s", name, v.Reason()))
		}
	}
	add("cumulative_return_pct", p.CumulativeReturnPct)
	add("annual_return_pct", p.AnnualReturnPct)
	add("max_drawdown_pct", p.MaxDrawdown.Pct)
	add("recovery_days", p.MaxDrawdown.Recovery)
	add("volatility_pct", p.VolatilityPct)
	add("sharpe", p.Sharpe)
	add("calmar", p.Calmar)
	add("mar", p.MAR)
	add("profit_factor", p.ProfitFactor)
	add("payoff_ratio", p.PayoffRatio)
	add("trades_per_day", p.TradesPerDay)
	add("cost_pct", p.CostPct)
	return notes
}
