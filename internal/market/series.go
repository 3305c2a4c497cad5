package market

import (
	"fmt"
	"sort"
	"time"
)

// Series 表示一段只读的 K 线时间轴，构造时校验 close_time 严格递增。
// 回测引擎的所有时间对齐均以 close_time（Unix 毫秒）为索引。
type Series struct {
	candles []Candle
	index   map[int64]int
}

// NewSeries 构造时间轴。空切片是合法输入（产生空资金曲线）；
// 乱序或重复时间戳属于输入契约违规，立即报错。
func NewSeries(candles []Candle) (*Series, error) {
	s := &Series{
		candles: append([]Candle(nil), candles...),
		index:   make(map[int64]int, len(candles)),
	}
	for i, c := range s.candles {
		if c.CloseTime <= 0 {
			return nil, fmt.Errorf("candle %d 的 close_time 非法: %d", i, c.CloseTime)
		}
		if i > 0 && c.CloseTime <= s.candles[i-1].CloseTime {
			return nil, fmt.Errorf("时间轴必须严格递增: candle %d (%d) <= candle %d (%d)",
				i, c.CloseTime, i-1, s.candles[i-1].CloseTime)
		}
		s.index[c.CloseTime] = i
	}
	return s, nil
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.candles)
}

func (s *Series) Candle(i int) Candle { return s.candles[i] }

// Candles 返回底层切片的拷贝，调用方不可能改写时间轴。
func (s *Series) Candles() []Candle {
	return append([]Candle(nil), s.candles...)
}

// IndexOf 返回时间戳对应的下标；只接受精确命中。
func (s *Series) IndexOf(ts int64) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[ts]
	return i, ok
}

// Closes 返回收盘价数组，供指标计算与向量化引擎使用。
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.High
	}
	return out
}

func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Low
	}
	return out
}

// Times 返回 close_time 序列。
func (s *Series) Times() []int64 {
	out := make([]int64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.CloseTime
	}
	return out
}

// Last 返回最后一根 K 线；空时间轴返回 false。
func (s *Series) Last() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// DurationDays 返回首尾 K 线之间的天数（浮点）。
func (s *Series) DurationDays() float64 {
	if s.Len() < 2 {
		return 0
	}
	ms := s.candles[len(s.candles)-1].CloseTime - s.candles[0].CloseTime
	return float64(ms) / float64(24*time.Hour/time.Millisecond)
}

// BarsPerYear 根据相邻 K 线间隔的中位数推断年化倍数。
// 少于两根 K 线时返回 0，由调用方将依赖它的指标标记为未定义。
func (s *Series) BarsPerYear() float64 {
	if s.Len() < 2 {
		return 0
	}
	gaps := make([]int64, 0, s.Len()-1)
	for i := 1; i < len(s.candles); i++ {
		gaps = append(gaps, s.candles[i].CloseTime-s.candles[i-1].CloseTime)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]
	if median <= 0 {
		return 0
	}
	yearMs := float64(365 * 24 * time.Hour / time.Millisecond)
	return yearMs / float64(median)
}
