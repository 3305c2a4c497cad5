package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sable/internal/engine"
)

var ErrRunNotFound = errors.New("run 不存在")

type runModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Symbol          string         `gorm:"column:symbol;index"`
	Profile         string         `gorm:"column:profile"`
	Timeframe       string         `gorm:"column:timeframe"`
	Status          string         `gorm:"column:status;index"`
	StartTS         int64          `gorm:"column:start_ts"`
	EndTS           int64          `gorm:"column:end_ts"`
	Message         string         `gorm:"column:message"`
	ConfigJSON      datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	SummaryJSON     datatypes.JSON `gorm:"column:summary_json;type:TEXT"`
	PerformanceJSON datatypes.JSON `gorm:"column:performance_json;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
	CompletedAtUnix int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

type runOrderModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string         `gorm:"column:run_id;index"`
	OrderID       int64          `gorm:"column:order_id"`
	Side          string         `gorm:"column:side"`
	Status        string         `gorm:"column:status"`
	Tag           string         `gorm:"column:tag"`
	OpenTime      int64          `gorm:"column:open_time"`
	CloseTime     int64          `gorm:"column:close_time"`
	OpenPrice     string         `gorm:"column:open_price"`
	ClosePrice    string         `gorm:"column:close_price"`
	Quantity      string         `gorm:"column:quantity"`
	Profit        string         `gorm:"column:profit"`
	ProfitRate    string         `gorm:"column:profit_rate"`
	Commission    string         `gorm:"column:commission"`
	OpenReason    string         `gorm:"column:open_reason"`
	MetaJSON      datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (runOrderModel) TableName() string { return "backtest_orders" }

type snapshotModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string  `gorm:"column:run_id;index:idx_snapshots_run"`
	TS            int64   `gorm:"column:ts;index:idx_snapshots_run"`
	Equity        float64 `gorm:"column:equity"`
	Cash          float64 `gorm:"column:cash"`
	PositionValue float64 `gorm:"column:position_value"`
	NetValue      float64 `gorm:"column:net_value"`
}

func (snapshotModel) TableName() string { return "backtest_snapshots" }

// RunStore 基于 Gorm + SQLite 持久化回测任务与结果。
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &runOrderModel{}, &snapshotModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 允许少量并行供 HTTP 读取，同时控制锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入一条 run 记录。
func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	m, err := toRunModel(run)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	m.CreatedAtUnix = now
	m.UpdatedAtUnix = now
	return s.db.WithContext(ctx).Create(&m).Error
}

// UpdateRunStatus 只更新状态与消息。
func (s *RunStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": time.Now().UnixMilli(),
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// FinishRun 写入终态：汇总、指标、状态与完成时间。
func (s *RunStore) FinishRun(ctx context.Context, id, status, message string, summary RunSummary, perf *engine.Performance) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	updates := map[string]any{
		"status":       status,
		"message":      message,
		"summary_json": datatypes.JSON(summaryJSON),
		"updated_at":   now,
		"completed_at": now,
	}
	if perf != nil {
		perfJSON, err := json.Marshal(perf)
		if err != nil {
			return err
		}
		updates["performance_json"] = datatypes.JSON(perfJSON)
	}
	res := s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun 读取单条 run。
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return fromRunModel(m)
}

// ListRuns 按创建时间倒序分页列出 run。
func (s *RunStore) ListRuns(ctx context.Context, status string, limit, offset int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&runModel{}).Order("created_at DESC").Limit(limit).Offset(offset)
	if strings.TrimSpace(status) != "" {
		q = q.Where("status = ?", status)
	}
	var models []runModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := fromRunModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// SaveOrders 批量写入某次 run 的订单。
func (s *RunStore) SaveOrders(ctx context.Context, runID string, orders []engine.Order) error {
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	models := make([]runOrderModel, 0, len(orders))
	for _, o := range orders {
		m := runOrderModel{
			RunID:         runID,
			OrderID:       o.ID,
			Side:          string(o.Side),
			Status:        string(o.Status),
			Tag:           o.Tag,
			OpenTime:      o.OpenTime,
			CloseTime:     o.CloseTime,
			OpenPrice:     o.OpenPrice.String(),
			ClosePrice:    o.ClosePrice.String(),
			Quantity:      o.Quantity.String(),
			Profit:        o.Profit.String(),
			ProfitRate:    o.ProfitRate.String(),
			Commission:    o.OpenFee.Add(o.CloseFee).String(),
			OpenReason:    o.Reason,
			CreatedAtUnix: now,
		}
		if len(o.Meta) > 0 {
			if metaJSON, err := json.Marshal(o.Meta); err == nil {
				m.MetaJSON = datatypes.JSON(metaJSON)
			}
		}
		models = append(models, m)
	}
	return s.db.WithContext(ctx).CreateInBatches(models, 200).Error
}

// OrderRecord 是对外暴露的订单明细。金额字段保留十进制字符串，避免浮点污染。
type OrderRecord struct {
	OrderID    int64          `json:"order_id"`
	Side       string         `json:"side"`
	Status     string         `json:"status"`
	Tag        string         `json:"tag,omitempty"`
	OpenTime   int64          `json:"open_time"`
	CloseTime  int64          `json:"close_time,omitempty"`
	OpenPrice  string         `json:"open_price"`
	ClosePrice string         `json:"close_price,omitempty"`
	Quantity   string         `json:"quantity"`
	Profit     string         `json:"profit"`
	ProfitRate string         `json:"profit_rate"`
	Commission string         `json:"commission"`
	OpenReason string         `json:"open_reason,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ListOrders 返回某次 run 的全部订单，按开仓时间升序。
func (s *RunStore) ListOrders(ctx context.Context, runID string) ([]OrderRecord, error) {
	var models []runOrderModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("open_time ASC, order_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]OrderRecord, 0, len(models))
	for _, m := range models {
		rec := OrderRecord{
			OrderID:    m.OrderID,
			Side:       m.Side,
			Status:     m.Status,
			Tag:        m.Tag,
			OpenTime:   m.OpenTime,
			CloseTime:  m.CloseTime,
			OpenPrice:  m.OpenPrice,
			ClosePrice: m.ClosePrice,
			Quantity:   m.Quantity,
			Profit:     m.Profit,
			ProfitRate: m.ProfitRate,
			Commission: m.Commission,
			OpenReason: m.OpenReason,
		}
		if len(m.MetaJSON) > 0 {
			_ = json.Unmarshal(m.MetaJSON, &rec.Meta)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveSnapshots 批量写入资金曲线采样点。
func (s *RunStore) SaveSnapshots(ctx context.Context, runID string, curve engine.Curve) error {
	if len(curve) == 0 {
		return nil
	}
	models := make([]snapshotModel, 0, len(curve))
	for _, p := range curve {
		equity, _ := p.Equity.Float64()
		cash, _ := p.Cash.Float64()
		posValue, _ := p.PositionValue.Float64()
		models = append(models, snapshotModel{
			RunID:         runID,
			TS:            p.Time,
			Equity:        equity,
			Cash:          cash,
			PositionValue: posValue,
			NetValue:      p.NetValue,
		})
	}
	return s.db.WithContext(ctx).CreateInBatches(models, 500).Error
}

// SnapshotRecord 是对外暴露的资金曲线采样点。
type SnapshotRecord struct {
	TS            int64   `json:"ts"`
	Equity        float64 `json:"equity"`
	Cash          float64 `json:"cash"`
	PositionValue float64 `json:"position_value"`
	NetValue      float64 `json:"net_value"`
}

// ListSnapshots 返回某次 run 的资金曲线，按时间升序。
func (s *RunStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	var models []snapshotModel
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("ts ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotRecord, 0, len(models))
	for _, m := range models {
		out = append(out, SnapshotRecord{
			TS:            m.TS,
			Equity:        m.Equity,
			Cash:          m.Cash,
			PositionValue: m.PositionValue,
			NetValue:      m.NetValue,
		})
	}
	return out, nil
}

// SnapshotsToCurve 把落库的采样点还原为资金曲线，供图表渲染复用。
func SnapshotsToCurve(ctx context.Context, store *RunStore, runID string) (engine.Curve, error) {
	snaps, err := store.ListSnapshots(ctx, runID)
	if err != nil {
		return nil, err
	}
	curve := make(engine.Curve, 0, len(snaps))
	for _, s := range snaps {
		curve = append(curve, engine.EquityPoint{
			Time:          s.TS,
			Equity:        decimal.NewFromFloat(s.Equity),
			Cash:          decimal.NewFromFloat(s.Cash),
			PositionValue: decimal.NewFromFloat(s.PositionValue),
			NetValue:      s.NetValue,
		})
	}
	return curve, nil
}

func toRunModel(run Run) (runModel, error) {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runModel{}, err
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return runModel{}, err
	}
	m := runModel{
		ID:          run.ID,
		Symbol:      run.Symbol,
		Profile:     run.Profile,
		Timeframe:   run.Timeframe,
		Status:      run.Status,
		StartTS:     run.StartTS,
		EndTS:       run.EndTS,
		Message:     run.Message,
		ConfigJSON:  datatypes.JSON(cfgJSON),
		SummaryJSON: datatypes.JSON(summaryJSON),
	}
	if run.Performance != nil {
		perfJSON, err := json.Marshal(run.Performance)
		if err != nil {
			return runModel{}, err
		}
		m.PerformanceJSON = datatypes.JSON(perfJSON)
	}
	if !run.CompletedAt.IsZero() {
		m.CompletedAtUnix = run.CompletedAt.UnixMilli()
	}
	return m, nil
}

func fromRunModel(m runModel) (Run, error) {
	run := Run{
		ID:        m.ID,
		Symbol:    m.Symbol,
		Profile:   m.Profile,
		Timeframe: m.Timeframe,
		Status:    m.Status,
		StartTS:   m.StartTS,
		EndTS:     m.EndTS,
		Message:   m.Message,
		CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		UpdatedAt: time.UnixMilli(m.UpdatedAtUnix),
	}
	if m.CompletedAtUnix > 0 {
		run.CompletedAt = time.UnixMilli(m.CompletedAtUnix)
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return Run{}, fmt.Errorf("解析 run config 失败 (id=%s): %w", m.ID, err)
		}
	}
	if len(m.SummaryJSON) > 0 {
		if err := json.Unmarshal(m.SummaryJSON, &run.Summary); err != nil {
			return Run{}, fmt.Errorf("解析 run summary 失败 (id=%s): %w", m.ID, err)
		}
	}
	if len(m.PerformanceJSON) > 0 {
		var perf engine.Performance
		if err := json.Unmarshal(m.PerformanceJSON, &perf); err != nil {
			return Run{}, fmt.Errorf("解析 run performance 失败 (id=%s): %w", m.ID, err)
		}
		run.Performance = &perf
	}
	return run, nil
}
