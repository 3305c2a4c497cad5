package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, "/data/candles", cfg.Data.Dir)
	assert.Equal(t, float64(10000), cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.001, cfg.Backtest.CommissionRate)
	assert.Equal(t, 0.2, cfg.Backtest.DefaultPositionPct)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrentFetch)
	assert.Equal(t, "configs/strategies.yaml", cfg.Strategy.ProfilesPath)
	assert.True(t, cfg.Backtest.CloseAtEndValue(), "close_at_end 缺省为 true")
}

func TestLoad_ExplicitZeroCommission(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
backtest:
  commission_rate: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 显式写 0 不被默认值覆盖
	assert.Zero(t, cfg.Backtest.CommissionRate)
}

func TestLoad_ExplicitCloseAtEndFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
backtest:
  close_at_end: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Backtest.CloseAtEnd)
	assert.False(t, cfg.Backtest.CloseAtEndValue())
}

func TestLoad_IncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
backtest:
  initial_capital: 5000
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
backtest:
  initial_capital: 8000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 主文件后合并，覆盖 include 的同名键
	assert.Equal(t, float64(8000), cfg.Backtest.InitialCapital)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoad_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()

	t.Run("未知数据源", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_source.yaml", `
data:
  sources:
    - name: kraken
      enabled: true
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("rest 源缺 base url", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_rest.yaml", `
data:
  sources:
    - name: rest
      enabled: true
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("手续费率越界", func(t *testing.T) {
		path := writeConfig(t, dir, "bad_rate.yaml", `
backtest:
  commission_rate: 1.5
`)
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestResolveActiveSource(t *testing.T) {
	d := DataConfig{
		ActiveSource: "csv",
		Sources: []DataSource{
			{Name: "binance", Enabled: true},
			{Name: "csv", Enabled: true, CSVDir: "/tmp"},
		},
	}
	assert.Equal(t, "csv", d.ResolveActiveSource().Name)

	d.ActiveSource = ""
	assert.Equal(t, "binance", d.ResolveActiveSource().Name)

	empty := DataConfig{}
	assert.Equal(t, "binance", empty.ResolveActiveSource().Name)
}
