package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sable/internal/engine"
)

var hundred = decimal.NewFromInt(100)

// TextOptions 控制文本报告的详略。
type TextOptions struct {
	// Extended 为 true 时附加逐单明细。
	Extended bool
}

// RenderText 将一次回测结果渲染为对齐的文本块。
// 数值在这里统一保留两位小数——舍入只发生在展示层，
// 未定义指标显式标注原因而不是打印 0。
func RenderText(title string, result *engine.Result, opts TextOptions) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("========== %s ==========\n", title))

	st := result.Stats
	b.WriteString(fmt.Sprintf("订单总数: %d（已平 %d / 持仓 %d）\n", st.TotalOrders, st.ClosedCount, st.OpenCount))
	b.WriteString(fmt.Sprintf("胜负: %d / %d  胜率 %.2f%%\n", st.Wins, st.Losses, st.WinRate*100))
	b.WriteString(fmt.Sprintf("已实现盈亏: %s  手续费合计: %s\n",
		st.TotalProfit.StringFixed(2), st.TotalCommission.StringFixed(2)))
	if len(result.Skipped) > 0 {
		b.WriteString(fmt.Sprintf("资金不足跳过的开仓信号: %d\n", len(result.Skipped)))
	}

	perf := result.Performance
	b.WriteString("---------- 绩效指标 ----------\n")
	writeMetric(&b, "绝对收益", perf.AbsoluteReturn)
	writeMetric(&b, "累计收益率%", perf.CumulativeReturnPct)
	writeMetric(&b, "年化收益率%", perf.AnnualReturnPct)
	writeMetric(&b, "最大回撤%", perf.MaxDrawdown.Pct)
	writeMetric(&b, "回撤恢复天数", perf.MaxDrawdown.Recovery)
	writeMetric(&b, "年化波动率%", perf.VolatilityPct)
	writeMetric(&b, "Sharpe", perf.Sharpe)
	writeMetric(&b, "Calmar", perf.Calmar)
	writeMetric(&b, "MAR", perf.MAR)
	writeMetric(&b, "盈亏比(Profit Factor)", perf.ProfitFactor)
	writeMetric(&b, "平均盈亏比(Payoff)", perf.PayoffRatio)
	writeMetric(&b, "日均交易次数", perf.TradesPerDay)
	writeMetric(&b, "成本占比%", perf.CostPct)
	if perf.Degraded {
		b.WriteString("注意: 无资金曲线，绝对收益仅含已实现盈亏\n")
	}
	for _, note := range perf.Notes {
		b.WriteString("  - " + note + "\n")
	}

	if final, ok := result.Curve.Final(); ok {
		b.WriteString(fmt.Sprintf("期末净值: %s (net=%.4f)\n", final.Equity.StringFixed(2), final.NetValue))
	}
	b.WriteString(fmt.Sprintf("向量化校验: trades=%d final=%.2f\n", result.Vector.Trades, result.Vector.FinalEquity))

	if opts.Extended {
		b.WriteString("---------- 订单明细 ----------\n")
		for _, o := range result.Orders {
			b.WriteString(formatOrder(o))
		}
	}
	b.WriteString(strings.Repeat("=", 30) + "\n")
	return b.String()
}

func writeMetric(b *strings.Builder, label string, v engine.Value) {
	if val, ok := v.Float64(); ok {
		b.WriteString(fmt.Sprintf("%s: %.2f\n", label, val))
		return
	}
	reason := v.Reason()
	if reason == "" {
		reason = "无法计算"
	}
	b.WriteString(fmt.Sprintf("%s: 未定义（%s）\n", label, reason))
}

func formatOrder(o engine.Order) string {
	openAt := time.UnixMilli(o.OpenTime).UTC().Format("2006-01-02 15:04")
	switch o.Status {
	case engine.StatusClosed:
		closeAt := time.UnixMilli(o.CloseTime).UTC().Format("2006-01-02 15:04")
		return fmt.Sprintf("#%d %s %s @%s -> %s @%s 盈亏 %s (%s%%)\n",
			o.ID, o.Side, o.Quantity.StringFixed(6), o.OpenPrice.StringFixed(2),
			closeAt, o.ClosePrice.StringFixed(2),
			o.Profit.StringFixed(2), o.ProfitRate.Mul(hundred).StringFixed(2))
	default:
		return fmt.Sprintf("#%d %s %s @%s 开仓于 %s（未平）\n",
			o.ID, o.Side, o.Quantity.StringFixed(6), o.OpenPrice.StringFixed(2), openAt)
	}
}
