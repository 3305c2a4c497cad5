package backtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sable/internal/market"
)

// RESTSource 对接任意返回 Binance 风格 klines 数组的 REST 端点，
// 响应用 gjson 解析，字段缺失按 0 处理。
type RESTSource struct {
	baseURL string
	path    string
	client  *http.Client
}

func NewRESTSource(baseURL string) *RESTSource {
	return &RESTSource{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		path:    "/fapi/v1/klines",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *RESTSource) Name() string { return "rest" }

func (r *RESTSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval 不能为空")
	}
	if r.baseURL == "" {
		return nil, fmt.Errorf("rest source 未配置 base url")
	}
	limit := req.Limit
	if limit <= 0 || limit > 1500 {
		limit = 1000
	}
	u, err := url.Parse(r.baseURL + r.path)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("symbol", strings.ToUpper(req.Symbol))
	q.Set("interval", strings.ToLower(req.Interval))
	q.Set("limit", strconv.Itoa(limit))
	if req.Start > 0 {
		q.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		q.Set("endTime", strconv.FormatInt(req.End, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rest source 返回状态码 %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("rest source 响应不是数组: %s", truncate(string(body), 200))
	}
	var out []market.Candle
	for _, row := range parsed.Array() {
		cols := row.Array()
		if len(cols) < 7 {
			continue
		}
		c := market.Candle{
			OpenTime:  cols[0].Int(),
			Open:      cols[1].Float(),
			High:      cols[2].Float(),
			Low:       cols[3].Float(),
			Close:     cols[4].Float(),
			Volume:    cols[5].Float(),
			CloseTime: cols[6].Int(),
		}
		if len(cols) > 8 {
			c.Trades = cols[8].Int()
		}
		out = append(out, c)
	}
	return dropUnclosed(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
