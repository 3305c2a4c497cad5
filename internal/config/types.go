package config

import "strings"

// Config 是 Sable 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Backtest BacktestConfig `toml:"backtest"`
	Strategy StrategyConfig `toml:"strategy"`
	Report   ReportConfig   `toml:"report"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 控制 K 线数据的落盘位置与抓取来源。
type DataConfig struct {
	Dir          string       `toml:"dir"`      // 每个 symbol@timeframe 一个 sqlite 文件
	RunDB        string       `toml:"run_db"`   // 回测结果库
	ActiveSource string       `toml:"active_source"`
	Sources      []DataSource `toml:"sources"`
}

type DataSource struct {
	Name        string      `toml:"name"` // binance | rest | csv
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	CSVDir      string      `toml:"csv_dir"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

// BacktestConfig 是引擎参数的配置面。
type BacktestConfig struct {
	InitialCapital     float64 `toml:"initial_capital"`
	CommissionRate     float64 `toml:"commission_rate"`
	RiskFreeRatePct    float64 `toml:"risk_free_rate_pct"`
	DefaultPositionPct float64 `toml:"default_position_pct"`
	// CloseAtEnd 使用指针以区分"显式 false"与"未设置"。
	CloseAtEnd *bool `toml:"close_at_end"`
	// MaxConcurrentFetch 限制同时进行的数据抓取任务数。
	MaxConcurrentFetch int `toml:"max_concurrent_fetch"`
}

func (b BacktestConfig) CloseAtEndValue() bool {
	if b.CloseAtEnd == nil {
		return true
	}
	return *b.CloseAtEnd
}

type StrategyConfig struct {
	ProfilesPath   string `toml:"profiles_path"`
	DefaultProfile string `toml:"default_profile"`
}

type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	Chart     bool   `toml:"chart"`
	PNG       bool   `toml:"png"`
	Extended  bool   `toml:"extended"`
}

func (d DataConfig) ResolveActiveSource() DataSource {
	if len(d.Sources) == 0 {
		return DataSource{
			Name:        "binance",
			Enabled:     true,
			RESTBaseURL: "https://fapi.binance.com",
		}
	}
	active := strings.ToLower(strings.TrimSpace(d.ActiveSource))
	var fallback DataSource
	for _, src := range d.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
