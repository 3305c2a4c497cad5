package engine

import (
	"fmt"
	"time"
)

// Signal 是策略在某根 K 线上做出的一次开仓或平仓决定。
// Time 必须精确命中价格时间轴的 close_time（Unix 毫秒）。
type Signal struct {
	Time    int64   `json:"time"`
	Price   float64 `json:"price"`
	Reason  string  `json:"reason,omitempty"`
	Tag     string  `json:"tag,omitempty"`
	OrderID int64   `json:"order_id,omitempty"` // 平仓信号可指定目标订单；0 表示按先开先平
}

// Validate 校验信号满足输入契约：时间戳与价格缺一不可。
func (s Signal) Validate() error {
	if s.Time <= 0 {
		return fmt.Errorf("信号缺少时间戳: %+v", s)
	}
	if s.Price <= 0 {
		return fmt.Errorf("信号价格非法 (time=%s price=%v)", formatTS(s.Time), s.Price)
	}
	return nil
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
