package engine

import (
	"errors"
	"fmt"

	"sable/internal/market"
)

// ErrTimestampNotInTimeline 表示信号时间戳不是时间轴索引的精确成员。
// 这里绝不吸附到最近的 K 线：模糊匹配会让 T 时刻产生的信号落到 T 之前的
// K 线上，引入前视偏差。
var ErrTimestampNotInTimeline = errors.New("信号时间戳未命中时间轴")

// AlignSignals 将开/平仓信号列表映射为与时间轴等长的 enter/exit 布尔数组，
// 供向量化引擎消费。空信号列表是合法输入，返回全 false 数组。
func AlignSignals(series *market.Series, entries, exits []Signal) (enter, exit []bool, err error) {
	if series == nil {
		return nil, nil, fmt.Errorf("时间轴不能为空")
	}
	enter = make([]bool, series.Len())
	exit = make([]bool, series.Len())
	if err := mark(series, entries, enter, "enter"); err != nil {
		return nil, nil, err
	}
	if err := mark(series, exits, exit, "exit"); err != nil {
		return nil, nil, err
	}
	return enter, exit, nil
}

func mark(series *market.Series, signals []Signal, dst []bool, kind string) error {
	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			return fmt.Errorf("%s 信号非法: %w", kind, err)
		}
		idx, ok := series.IndexOf(sig.Time)
		if !ok {
			return fmt.Errorf("%w: %s 信号 time=%s (%d)",
				ErrTimestampNotInTimeline, kind, formatTS(sig.Time), sig.Time)
		}
		dst[idx] = true
	}
	return nil
}
