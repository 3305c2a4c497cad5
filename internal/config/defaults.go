package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultAppLogPath      = "/data/logs/sable.log"
	defaultDataDir         = "/data/candles"
	defaultRunDB           = "/data/db/backtest_runs.db"
	defaultSourceName      = "binance"
	defaultSourceREST      = "https://fapi.binance.com"
	defaultInitialCapital  = 10000
	defaultCommissionRate  = 0.001
	defaultRiskFreePct     = 3
	defaultPositionPct     = 0.2
	defaultMaxFetch        = 2
	defaultProfilesPath    = "configs/strategies.yaml"
	defaultProfileID       = "sma_fast"
	defaultReportOutputDir = "/data/reports"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.dir", &d.Dir, defaultDataDir),
		stringFieldDefault("data.run_db", &d.RunDB, defaultRunDB),
		fieldDefault{
			key:  "data.active_source",
			need: func() bool { return strings.TrimSpace(d.ActiveSource) == "" },
			apply: func() {
				d.ActiveSource = firstEnabledSource(d.Sources)
			},
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.initial_capital",
			need:  func() bool { return b.InitialCapital <= 0 },
			apply: func() { b.InitialCapital = defaultInitialCapital },
		},
		fieldDefault{
			key:   "backtest.commission_rate",
			need:  func() bool { return b.CommissionRate == 0 },
			apply: func() { b.CommissionRate = defaultCommissionRate },
		},
		fieldDefault{
			key:   "backtest.risk_free_rate_pct",
			need:  func() bool { return b.RiskFreeRatePct == 0 },
			apply: func() { b.RiskFreeRatePct = defaultRiskFreePct },
		},
		fieldDefault{
			key:   "backtest.default_position_pct",
			need:  func() bool { return b.DefaultPositionPct <= 0 || b.DefaultPositionPct > 1 },
			apply: func() { b.DefaultPositionPct = defaultPositionPct },
		},
		fieldDefault{
			key:   "backtest.max_concurrent_fetch",
			need:  func() bool { return b.MaxConcurrentFetch <= 0 },
			apply: func() { b.MaxConcurrentFetch = defaultMaxFetch },
		},
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.profiles_path", &s.ProfilesPath, defaultProfilesPath),
		stringFieldDefault("strategy.default_profile", &s.DefaultProfile, defaultProfileID),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.output_dir", &r.OutputDir, defaultReportOutputDir),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledSource(sources []DataSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultSourceName
}
