package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.CommissionRate < 0 || b.CommissionRate >= 1 {
		return fmt.Errorf("backtest.commission_rate must be in [0, 1)")
	}
	if b.DefaultPositionPct <= 0 || b.DefaultPositionPct > 1 {
		return fmt.Errorf("backtest.default_position_pct must be in (0, 1]")
	}
	if b.MaxConcurrentFetch <= 0 {
		return fmt.Errorf("backtest.max_concurrent_fetch must be > 0")
	}
	return nil
}

func (d *DataConfig) validate() error {
	if strings.TrimSpace(d.Dir) == "" {
		return fmt.Errorf("data.dir cannot be empty")
	}
	if strings.TrimSpace(d.RunDB) == "" {
		return fmt.Errorf("data.run_db cannot be empty")
	}
	for i, src := range d.Sources {
		name := strings.ToLower(strings.TrimSpace(src.Name))
		switch name {
		case "binance", "rest", "csv":
		case "":
			return fmt.Errorf("data.sources[%d] missing name", i)
		default:
			return fmt.Errorf("data.sources[%d] unknown source: %s", i, src.Name)
		}
		if name == "rest" && strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("data.sources[%d] rest source requires rest_base_url", i)
		}
		if name == "csv" && strings.TrimSpace(src.CSVDir) == "" {
			return fmt.Errorf("data.sources[%d] csv source requires csv_dir", i)
		}
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if strings.TrimSpace(s.ProfilesPath) == "" {
		return fmt.Errorf("strategy.profiles_path cannot be empty")
	}
	return nil
}
