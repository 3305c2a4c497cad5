package backtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sable/internal/config"
	"sable/internal/engine"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/report"
	"sable/internal/strategy"
)

type SimulatorConfig struct {
	CandleStore    *CandleStore
	RunStore       *RunStore
	Profiles       *strategy.ProfileRegistry
	Provider       engine.IndicatorProvider
	Defaults       config.BacktestConfig
	DefaultProfile string
	MaxConcurrent  int
	Report         config.ReportConfig
}

// Simulator 把历史 K 线与策略 profile 推演为一条完整的回测记录：
// 任务落库后在后台执行引擎流水线，结果（订单、资金曲线、指标）写回存储。
type Simulator struct {
	store       *CandleStore
	runs        *RunStore
	profiles    *strategy.ProfileRegistry
	provider    engine.IndicatorProvider
	defaults    config.BacktestConfig
	defaultProf string
	report      config.ReportConfig

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.RunStore == nil {
		return nil, fmt.Errorf("run store 不能为空")
	}
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile registry 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Simulator{
		store:       cfg.CandleStore,
		runs:        cfg.RunStore,
		profiles:    cfg.Profiles,
		provider:    cfg.Provider,
		defaults:    cfg.Defaults,
		defaultProf: cfg.DefaultProfile,
		report:      cfg.Report,
		sem:         make(chan struct{}, maxConcurrent),
		baseCtx:     context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// StartRun 创建回测任务并立即返回，推演在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return Run{}, fmt.Errorf("symbol 不能为空")
	}
	profileID := strings.TrimSpace(req.Profile)
	if profileID == "" {
		profileID = s.defaultProf
	}
	if _, ok := s.profiles.Profile(profileID); !ok {
		return Run{}, fmt.Errorf("未知 profile: %s", profileID)
	}
	timeframe := strings.TrimSpace(req.Timeframe)
	if timeframe == "" {
		timeframe = "1h"
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return Run{}, err
	}
	start, end := tf.AlignRange(req.StartTS, req.EndTS)
	if start >= end {
		return Run{}, fmt.Errorf("start 与 end 需要构成区间")
	}

	cfg := RunConfig{
		Profile:            profileID,
		Symbol:             strings.ToUpper(req.Symbol),
		Timeframe:          tf.Key,
		StartTS:            start,
		EndTS:              end,
		InitialCapital:     s.defaults.InitialCapital,
		CommissionRate:     s.defaults.CommissionRate,
		RiskFreeRatePct:    s.defaults.RiskFreeRatePct,
		CloseAtEnd:         s.defaults.CloseAtEndValue(),
		DefaultPositionPct: s.defaults.DefaultPositionPct,
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.CommissionRate > 0 {
		cfg.CommissionRate = req.CommissionRate
	}
	if req.CloseAtEnd != nil {
		cfg.CloseAtEnd = *req.CloseAtEnd
	}

	run := Run{
		ID:        uuid.NewString(),
		Symbol:    cfg.Symbol,
		Profile:   profileID,
		Timeframe: tf.Key,
		Status:    RunStatusPending,
		StartTS:   start,
		EndTS:     end,
		Config:    cfg,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.runs.InsertRun(s.ctx(), run); err != nil {
		return Run{}, fmt.Errorf("创建 run 失败: %w", err)
	}
	logger.Infof("[backtest] run %s 创建：%s %s profile=%s [%d,%d]",
		run.ID, cfg.Symbol, tf.Key, profileID, start, end)

	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		_ = s.runs.UpdateRunStatus(context.Background(), runID, RunStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if err := s.runs.UpdateRunStatus(ctx, runID, RunStatusRunning, ""); err != nil {
		logger.Errorf("[backtest] run %s 状态更新失败: %v", runID, err)
		return
	}

	result, err := s.execute(ctx, cfg)
	if err != nil {
		logger.Errorf("[backtest] run %s 失败: %v", runID, err)
		_ = s.runs.FinishRun(ctx, runID, RunStatusFailed, err.Error(), RunSummary{FinishedAt: time.Now()}, nil)
		return
	}

	if err := s.persist(ctx, runID, result); err != nil {
		logger.Errorf("[backtest] run %s 结果落库失败: %v", runID, err)
		_ = s.runs.FinishRun(ctx, runID, RunStatusFailed, "结果落库失败: "+err.Error(), RunSummary{FinishedAt: time.Now()}, nil)
		return
	}
	logger.Infof("[backtest] run %s 完成：orders=%d closed=%d", runID, result.Stats.TotalOrders, result.Stats.ClosedCount)
	s.emitReport(runID, cfg, result)
}

// emitReport 在 run 成功后把文本报告逐行写进日志，并按配置把图表落盘。
// 报告失败只告警，不影响已入库的结果。
func (s *Simulator) emitReport(runID string, cfg RunConfig, result *engine.Result) {
	title := fmt.Sprintf("%s %s %s", cfg.Symbol, cfg.Timeframe, cfg.Profile)
	logger.InfoBlock(report.RenderText(title, result, report.TextOptions{Extended: s.report.Extended}))

	if !s.report.Chart && !s.report.PNG {
		return
	}
	outDir := s.report.OutputDir
	if outDir == "" {
		outDir = "reports"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		logger.Errorf("[backtest] run %s 创建报告目录失败: %v", runID, err)
		return
	}
	if s.report.Chart {
		html, err := report.BuildEquityHTML(title, result.Curve)
		if err != nil {
			logger.Warnf("[backtest] run %s 图表渲染失败: %v", runID, err)
		} else if err := os.WriteFile(filepath.Join(outDir, runID+".html"), html, 0o644); err != nil {
			logger.Errorf("[backtest] run %s 图表落盘失败: %v", runID, err)
		}
	}
	if s.report.PNG {
		img, err := report.RenderEquityPNG(s.ctx(), title, result.Curve)
		if err != nil {
			logger.Warnf("[backtest] run %s PNG 渲染失败: %v", runID, err)
		} else if err := os.WriteFile(filepath.Join(outDir, runID+".png"), img.Bytes, 0o644); err != nil {
			logger.Errorf("[backtest] run %s PNG 落盘失败: %v", runID, err)
		}
	}
}

// execute 跑一遍完整引擎流水线：加载时间轴 → 构造策略 → Runner.Run。
func (s *Simulator) execute(ctx context.Context, cfg RunConfig) (*engine.Result, error) {
	candles, err := s.store.RangeCandles(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return nil, fmt.Errorf("加载 K 线失败: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("区间内无本地数据，请先提交 fetch 任务 (%s %s)", cfg.Symbol, cfg.Timeframe)
	}
	series, err := market.NewSeries(candles)
	if err != nil {
		return nil, fmt.Errorf("时间轴非法: %w", err)
	}

	strat, err := s.profiles.Build(cfg.Profile)
	if err != nil {
		return nil, err
	}
	runner, err := engine.NewRunner(engine.Config{
		InitialCapital:     cfg.InitialCapital,
		CommissionRate:     cfg.CommissionRate,
		RiskFreeRatePct:    cfg.RiskFreeRatePct,
		CloseAtEnd:         cfg.CloseAtEnd,
		DefaultPositionPct: cfg.DefaultPositionPct,
	}, strat, s.provider)
	if err != nil {
		return nil, err
	}
	return runner.Run(series)
}

// persist 把引擎结果转成汇总与明细写库。
func (s *Simulator) persist(ctx context.Context, runID string, result *engine.Result) error {
	if err := s.runs.SaveOrders(ctx, runID, result.Orders); err != nil {
		return err
	}
	if err := s.runs.SaveSnapshots(ctx, runID, result.Curve); err != nil {
		return err
	}
	summary := summarize(result)
	return s.runs.FinishRun(ctx, runID, RunStatusDone, "", summary, &result.Performance)
}

func summarize(result *engine.Result) RunSummary {
	summary := RunSummary{
		Orders:       result.Stats.TotalOrders,
		ClosedOrders: result.Stats.ClosedCount,
		Wins:         result.Stats.Wins,
		Losses:       result.Stats.Losses,
		WinRate:      result.Stats.WinRate,
		Snapshots:    len(result.Curve),
		Degraded:     result.Performance.Degraded,
		Notes:        append([]string(nil), result.Performance.Notes...),
		FinishedAt:   time.Now(),
	}
	if final, ok := result.Curve.Final(); ok {
		summary.FinalEquity, _ = final.Equity.Float64()
	}
	if v, ok := result.Performance.AbsoluteReturn.Float64(); ok {
		summary.Profit = v
	}
	if v, ok := result.Performance.CumulativeReturnPct.Float64(); ok {
		summary.ReturnPct = v
	}
	if v, ok := result.Performance.MaxDrawdown.Pct.Float64(); ok {
		summary.MaxDrawdownPct = v
	}
	summary.AvgHoldingHrs = avgHoldingHours(result.Orders)
	return summary
}

// avgHoldingHours 求已平仓订单的平均持仓时长（小时）。
func avgHoldingHours(orders []engine.Order) float64 {
	var total int64
	var n int
	for _, o := range orders {
		if o.Status != engine.StatusClosed || o.CloseTime <= o.OpenTime {
			continue
		}
		total += o.CloseTime - o.OpenTime
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n) / float64(time.Hour/time.Millisecond)
}

// GetRun 透传到存储层。
func (s *Simulator) GetRun(ctx context.Context, id string) (Run, error) {
	return s.runs.GetRun(ctx, id)
}

// ListRuns 透传到存储层。
func (s *Simulator) ListRuns(ctx context.Context, status string, limit, offset int) ([]Run, error) {
	return s.runs.ListRuns(ctx, status, limit, offset)
}
