package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"sable/internal/logger"
	"sable/internal/market"
)

// Indicators 是指标名到序列的映射，每个序列与时间轴等长对齐。
type Indicators map[string][]float64

// Strategy 是编排器唯一依赖的外部策略能力。信号产出必须是纯函数：
// 同一时间轴与指标输入必须给出相同信号，引擎的可复现性建立在这之上。
type Strategy interface {
	Name() string
	// RequiredIndicators 声明所需指标，如 "sma:10"、"rsi:14"、"macd:12,26,9"。
	RequiredIndicators() []string
	BuySignals(series *market.Series, ind Indicators) ([]Signal, error)
	SellSignals(series *market.Series, ind Indicators, open []Order) ([]Signal, error)
}

// PositionSizer 是可选能力：策略自定义仓位大小。未实现时按可用资金的
// 固定比例建仓。
type PositionSizer interface {
	PositionSize(price float64, available decimal.Decimal) decimal.Decimal
}

// StopLossChecker 是可选能力：逐根 K 线用收盘价询问是否止损离场。
// 只作用于卖出信号处理完后仍然在持的仓位。
type StopLossChecker interface {
	ShouldStopLoss(o Order, price float64) bool
}

// TakeProfitChecker 是可选能力：逐根 K 线用收盘价询问是否止盈离场。
type TakeProfitChecker interface {
	ShouldTakeProfit(o Order, price float64) bool
}

// IndicatorProvider 根据声明式名称计算指标序列。
type IndicatorProvider interface {
	Compute(series *market.Series, names []string) (Indicators, error)
}

// Config 是一次回测的引擎参数。
type Config struct {
	InitialCapital  float64
	CommissionRate  float64
	RiskFreeRatePct float64
	// CloseAtEnd 为 true 时在最后一根 K 线强制平掉所有剩余仓位；
	// 为 false 时只盯市不平仓，统计口径仅覆盖已实现盈亏。
	CloseAtEnd bool
	// DefaultPositionPct 是策略未实现 PositionSizer 时的建仓比例。
	DefaultPositionPct float64
}

func (c Config) validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("初始资金必须为正, got %v", c.InitialCapital)
	}
	if c.CommissionRate < 0 {
		return fmt.Errorf("手续费率不能为负, got %v", c.CommissionRate)
	}
	return nil
}

// Result 是一次完整回测的最终报告。
type Result struct {
	Entries     []bool       `json:"entries"`
	Exits       []bool       `json:"exits"`
	Orders      []Order      `json:"orders"`
	Stats       Stats        `json:"stats"`
	Curve       Curve        `json:"curve"`
	Performance Performance  `json:"performance"`
	Vector      VectorResult `json:"vector"`
	Skipped     []Signal     `json:"skipped,omitempty"` // 因资金不足被跳过的开仓信号
}

// Runner 驱动完整流水线：策略 → 账本 → 对齐 → 向量化校验 → 资金曲线 → 指标。
// 执行全程单线程、严格按时间顺序，不持有任何外部资源。
type Runner struct {
	cfg      Config
	strategy Strategy
	provider IndicatorProvider
}

func NewRunner(cfg Config, strategy Strategy, provider IndicatorProvider) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, errors.New("strategy 不能为空")
	}
	if cfg.DefaultPositionPct <= 0 || cfg.DefaultPositionPct > 1 {
		cfg.DefaultPositionPct = 0.2
	}
	return &Runner{cfg: cfg, strategy: strategy, provider: provider}, nil
}

// Run 执行一次回测。策略违反接口契约（指标缺失、信号畸形、平仓目标不存在）
// 会中止整个回测并带出诊断上下文；单个信号的资金不足只记录并跳过。
func (r *Runner) Run(series *market.Series) (*Result, error) {
	if series == nil {
		return nil, errors.New("时间轴不能为空")
	}

	ind, err := r.computeIndicators(series)
	if err != nil {
		return nil, err
	}

	buys, err := r.strategy.BuySignals(series, ind)
	if err != nil {
		return nil, fmt.Errorf("策略 %s 生成买入信号失败: %w", r.strategy.Name(), err)
	}
	for i, sig := range buys {
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("策略 %s 第 %d 个买入信号违反契约: %w", r.strategy.Name(), i, err)
		}
	}
	sortSignals(buys)

	ledger := NewLedger(r.cfg.CommissionRate)
	cash := decimal.NewFromFloat(r.cfg.InitialCapital)
	var skipped []Signal
	skippedIdx := make(map[int]struct{})
	for i, sig := range buys {
		qty := r.positionSize(sig.Price, cash)
		order, err := ledger.CreateOrder(sig, SideLong, qty, cash)
		if errors.Is(err, ErrInsufficientCapital) {
			logger.Warnf("[engine] 跳过买入信号: %v", err)
			skipped = append(skipped, sig)
			skippedIdx[i] = struct{}{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("建仓失败: %w", err)
		}
		cash = cash.Sub(order.OpenCost())
	}

	sells, err := r.strategy.SellSignals(series, ind, ledger.OpenOrders())
	if err != nil {
		return nil, fmt.Errorf("策略 %s 生成卖出信号失败: %w", r.strategy.Name(), err)
	}
	sortSignals(sells)
	for i, sig := range sells {
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("策略 %s 第 %d 个卖出信号违反契约: %w", r.strategy.Name(), i, err)
		}
		id := sig.OrderID
		if id == 0 {
			oldest, ok := ledger.OldestOpen()
			if !ok {
				return nil, fmt.Errorf("策略 %s 在无持仓时发出卖出信号 (time=%s)",
					r.strategy.Name(), formatTS(sig.Time))
			}
			id = oldest.ID
		}
		order, err := ledger.CloseOrder(id, sig)
		if err != nil {
			return nil, fmt.Errorf("平仓失败: %w", err)
		}
		cash = cash.Add(order.CloseProceeds())
	}

	exitSignals := append([]Signal(nil), sells...)
	checked, err := r.applyExitChecks(ledger, series)
	if err != nil {
		return nil, err
	}
	exitSignals = append(exitSignals, checked...)
	if r.cfg.CloseAtEnd {
		forced, err := r.closeRemaining(ledger, series)
		if err != nil {
			return nil, err
		}
		exitSignals = append(exitSignals, forced...)
	}

	// 跳过的信号按下标剔除：相同内容的两个信号里只有一个被跳过时，
	// 另一个仍然要进入布尔数组
	entrySignals := make([]Signal, 0, len(buys))
	for i, sig := range buys {
		if _, ok := skippedIdx[i]; ok {
			continue
		}
		entrySignals = append(entrySignals, sig)
	}
	enter, exit, err := AlignSignals(series, entrySignals, exitSignals)
	if err != nil {
		return nil, err
	}

	vec, err := r.crossValidate(series, ledger, enter, exit)
	if err != nil {
		return nil, err
	}

	orders := ledger.Orders()
	curve, err := BuildCurve(series, orders, decimal.NewFromFloat(r.cfg.InitialCapital))
	if err != nil {
		return nil, err
	}

	perf := ComputePerformance(PerfInput{
		Curve:           curve,
		Orders:          orders,
		InitialCapital:  decimal.NewFromFloat(r.cfg.InitialCapital),
		RiskFreeRatePct: r.cfg.RiskFreeRatePct,
		DurationDays:    series.DurationDays(),
		BarsPerYear:     series.BarsPerYear(),
	})

	return &Result{
		Entries:     enter,
		Exits:       exit,
		Orders:      orders,
		Stats:       ledger.Statistics(),
		Curve:       curve,
		Performance: perf,
		Vector:      vec,
		Skipped:     skipped,
	}, nil
}

func (r *Runner) computeIndicators(series *market.Series) (Indicators, error) {
	names := r.strategy.RequiredIndicators()
	if len(names) == 0 {
		return Indicators{}, nil
	}
	if r.provider == nil {
		return nil, fmt.Errorf("策略 %s 需要指标 %v 但未配置 provider", r.strategy.Name(), names)
	}
	ind, err := r.provider.Compute(series, names)
	if err != nil {
		return nil, fmt.Errorf("指标计算失败: %w", err)
	}
	for _, name := range names {
		seriesVals, ok := ind[name]
		if !ok || len(seriesVals) == 0 {
			return nil, fmt.Errorf("指标 %s 为空", name)
		}
		if len(seriesVals) != series.Len() {
			return nil, fmt.Errorf("指标 %s 长度 %d 与时间轴 %d 不对齐", name, len(seriesVals), series.Len())
		}
	}
	return ind, nil
}

func (r *Runner) positionSize(price float64, available decimal.Decimal) decimal.Decimal {
	if sizer, ok := r.strategy.(PositionSizer); ok {
		return sizer.PositionSize(price, available)
	}
	budget := available.Mul(decimal.NewFromFloat(r.cfg.DefaultPositionPct))
	p := decimal.NewFromFloat(price)
	if p.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	// 预留手续费，避免 20% 档位因费率刚好超出可用资金
	feeFactor := decimal.NewFromFloat(1 + r.cfg.CommissionRate)
	return budget.Div(p.Mul(feeFactor))
}

// applyExitChecks 在策略实现止损/止盈可选接口时，按时间顺序逐根 K 线
// 用收盘价询问策略，命中即平仓（归因 stop_loss / take_profit）。
func (r *Runner) applyExitChecks(ledger *Ledger, series *market.Series) ([]Signal, error) {
	sl, hasSL := r.strategy.(StopLossChecker)
	tp, hasTP := r.strategy.(TakeProfitChecker)
	if !hasSL && !hasTP {
		return nil, nil
	}
	var forced []Signal
	for i := 0; i < series.Len(); i++ {
		c := series.Candle(i)
		for _, o := range ledger.OpenOrders() {
			if c.CloseTime <= o.OpenTime {
				continue
			}
			var reason string
			switch {
			case hasSL && sl.ShouldStopLoss(o, c.Close):
				reason = "stop_loss"
			case hasTP && tp.ShouldTakeProfit(o, c.Close):
				reason = "take_profit"
			default:
				continue
			}
			sig := Signal{Time: c.CloseTime, Price: c.Close, Reason: reason, Tag: o.Tag, OrderID: o.ID}
			if _, err := ledger.CloseOrder(o.ID, sig); err != nil {
				return nil, fmt.Errorf("%s 平仓订单 %d 失败: %w", reason, o.ID, err)
			}
			forced = append(forced, sig)
		}
	}
	return forced, nil
}

// closeRemaining 在最后一根 K 线以收盘价强平剩余仓位（平仓归因为 end_of_backtest）。
func (r *Runner) closeRemaining(ledger *Ledger, series *market.Series) ([]Signal, error) {
	last, ok := series.Last()
	if !ok {
		return nil, nil
	}
	var forced []Signal
	for _, o := range ledger.OpenOrders() {
		sig := Signal{
			Time:    last.CloseTime,
			Price:   last.Close,
			Reason:  "end_of_backtest",
			Tag:     o.Tag,
			OrderID: o.ID,
		}
		if _, err := ledger.CloseOrder(o.ID, sig); err != nil {
			return nil, fmt.Errorf("收尾强平订单 %d 失败: %w", o.ID, err)
		}
		forced = append(forced, sig)
	}
	return forced, nil
}

// crossValidate 将对齐后的布尔数组交给独立的向量化引擎重放，
// 用成交次数对账本做旁路校验；不一致只告警不终止。
func (r *Runner) crossValidate(series *market.Series, ledger *Ledger, enter, exit []bool) (VectorResult, error) {
	if series.Len() == 0 {
		return VectorResult{}, nil
	}
	vec, err := SimulateVector(series.Closes(), enter, exit, r.cfg.InitialCapital, r.cfg.CommissionRate)
	if err != nil {
		return VectorResult{}, fmt.Errorf("向量化校验失败: %w", err)
	}
	closed := len(ledger.ClosedOrders())
	if vec.Trades != closed {
		logger.Warnf("[engine] 向量化校验不一致: vector=%d ledger=%d", vec.Trades, closed)
	}
	return vec, nil
}

func sortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].Time < signals[j].Time })
}
