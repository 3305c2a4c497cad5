package backtest

import (
	"encoding/json"
	"time"

	"sable/internal/engine"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Profile            string  `json:"profile"`
	Symbol             string  `json:"symbol"`
	Timeframe          string  `json:"timeframe"`
	StartTS            int64   `json:"start_ts"`
	EndTS              int64   `json:"end_ts"`
	InitialCapital     float64 `json:"initial_capital"`
	CommissionRate     float64 `json:"commission_rate"`
	RiskFreeRatePct    float64 `json:"risk_free_rate_pct"`
	CloseAtEnd         bool    `json:"close_at_end"`
	DefaultPositionPct float64 `json:"default_position_pct"`
	Notes              string  `json:"notes,omitempty"`
}

// RunSummary 汇总一次回测的结果，供列表页展示。
type RunSummary struct {
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Orders         int       `json:"orders"`
	ClosedOrders   int       `json:"closed_orders"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	AvgHoldingHrs  float64   `json:"avg_holding_hours"`
	Snapshots      int       `json:"snapshots"`
	Degraded       bool      `json:"degraded"`
	Notes          []string  `json:"notes,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 表示一次回测任务。
type Run struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Profile     string              `json:"profile"`
	Timeframe   string              `json:"timeframe"`
	Status      string              `json:"status"`
	StartTS     int64               `json:"start_ts"`
	EndTS       int64               `json:"end_ts"`
	Message     string              `json:"message"`
	Config      RunConfig           `json:"config"`
	Summary     RunSummary          `json:"summary"`
	Performance *engine.Performance `json:"performance,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Profile        string  `json:"profile"`
	Timeframe      string  `json:"timeframe"`
	StartTS        int64   `json:"start_ts" binding:"required"`
	EndTS          int64   `json:"end_ts" binding:"required"`
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"`
	CloseAtEnd     *bool   `json:"close_at_end"`
}
