package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sable/internal/market"
)

// CSVSource 从本地 CSV 读取 K 线，文件名约定 SYMBOL_timeframe.csv。
// 列格式：open_time,open,high,low,close,volume,close_time[,trades]，
// 首行可以是表头。
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: strings.TrimSpace(dir)}
}

func (c *CSVSource) Name() string { return "csv" }

func (c *CSVSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	if c.dir == "" {
		return nil, fmt.Errorf("csv source 未配置目录")
	}
	name := fmt.Sprintf("%s_%s.csv", strings.ToUpper(req.Symbol), strings.ToLower(req.Interval))
	path := filepath.Join(c.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 csv 失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 csv 失败 (%s): %w", name, err)
	}

	var out []market.Candle
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(rec) < 7 {
			continue
		}
		openTime, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			if i == 0 {
				continue // 表头行
			}
			return nil, fmt.Errorf("csv 第 %d 行 open_time 非法: %q", i+1, rec[0])
		}
		candle := market.Candle{OpenTime: openTime}
		floats := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		for j, target := range floats {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv 第 %d 行第 %d 列非法: %q", i+1, j+2, rec[j+1])
			}
			*target = v
		}
		closeTime, err := strconv.ParseInt(strings.TrimSpace(rec[6]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv 第 %d 行 close_time 非法: %q", i+1, rec[6])
		}
		candle.CloseTime = closeTime
		if len(rec) > 7 {
			candle.Trades, _ = strconv.ParseInt(strings.TrimSpace(rec[7]), 10, 64)
		}
		if !inRange(candle.OpenTime, req.Start, req.End) {
			continue
		}
		out = append(out, candle)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func inRange(ts, start, end int64) bool {
	if start > 0 && ts < start {
		return false
	}
	if end > 0 && ts > end {
		return false
	}
	return true
}
