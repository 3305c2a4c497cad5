package app

import (
	"context"
	"fmt"
	"strings"

	"sable/internal/backtest"
	"sable/internal/config"
	"sable/internal/logger"
	"sable/internal/strategy"
	httpapi "sable/internal/transport/http"
)

// AppBuilder 把配置装配成可运行的应用，关键构造步骤留有注入点方便测试。
type AppBuilder struct {
	cfg *config.Config

	sourcesFn  func(config.DataConfig) (map[string]backtest.CandleSource, string, error)
	profilesFn func(string) (*strategy.ProfileRegistry, error)
	httpFn     func(httpapi.Config) (*httpapi.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		sourcesFn:  buildSources,
		profilesFn: strategy.NewProfileRegistry,
		httpFn:     httpapi.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	candleStore, err := backtest.NewCandleStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线存储失败: %w", err)
	}
	runStore, err := backtest.NewRunStore(cfg.Data.RunDB)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	sources, defaultSource, err := b.sourcesFn(cfg.Data)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 数据源已就绪：%s（默认 %s）", strings.Join(sourceNames(sources), ", "), defaultSource)

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store:         candleStore,
		Sources:       sources,
		DefaultSource: defaultSource,
		MaxConcurrent: cfg.Backtest.MaxConcurrentFetch,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化数据服务失败: %w", err)
	}

	profiles, err := b.profilesFn(cfg.Strategy.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("加载策略 profile 失败: %w", err)
	}
	logger.Infof("✓ 已加载 %d 个策略 profile: %v", len(profiles.IDs()), profiles.IDs())
	profiles.Subscribe(func(snap strategy.ProfileSnapshot) {
		logger.Infof("[profiles] 热重载完成，version=%d profiles=%d", snap.Version, len(snap.Profiles))
	})

	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore:    candleStore,
		RunStore:       runStore,
		Profiles:       profiles,
		Provider:       strategy.NewTalibProvider(),
		Defaults:       cfg.Backtest,
		DefaultProfile: cfg.Strategy.DefaultProfile,
		MaxConcurrent:  cfg.Backtest.MaxConcurrentFetch,
		Report:         cfg.Report,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化回测模拟器失败: %w", err)
	}

	httpSrv, err := b.httpFn(httpapi.Config{
		Addr:      cfg.App.HTTPAddr,
		Svc:       svc,
		Simulator: sim,
		RunStore:  runStore,
		Profiles:  profiles,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:         cfg,
		candleStore: candleStore,
		runStore:    runStore,
		svc:         svc,
		sim:         sim,
		httpSrv:     httpSrv,
	}, nil
}

// buildSources 按配置构造全部启用的数据源；active_source 指定默认项。
func buildSources(data config.DataConfig) (map[string]backtest.CandleSource, string, error) {
	out := make(map[string]backtest.CandleSource)
	for _, src := range data.Sources {
		if !src.Enabled {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(src.Name))
		switch name {
		case "binance":
			bs, err := backtest.NewBinanceSource(backtest.BinanceOptions{
				RESTBaseURL:  src.RESTBaseURL,
				ProxyEnabled: src.Proxy.Enabled,
				RESTProxyURL: src.Proxy.RESTURL,
			})
			if err != nil {
				return nil, "", fmt.Errorf("初始化 binance 数据源失败: %w", err)
			}
			out[name] = bs
		case "rest":
			out[name] = backtest.NewRESTSource(src.RESTBaseURL)
		case "csv":
			out[name] = backtest.NewCSVSource(src.CSVDir)
		default:
			return nil, "", fmt.Errorf("未知数据源: %s", src.Name)
		}
	}
	if len(out) == 0 {
		bs, err := backtest.NewBinanceSource(backtest.BinanceOptions{})
		if err != nil {
			return nil, "", fmt.Errorf("初始化默认 binance 数据源失败: %w", err)
		}
		out["binance"] = bs
	}
	defaultSource := strings.ToLower(strings.TrimSpace(data.ActiveSource))
	if _, ok := out[defaultSource]; !ok {
		defaultSource = ""
		for name := range out {
			if defaultSource == "" || name < defaultSource {
				defaultSource = name
			}
		}
	}
	return out, defaultSource, nil
}

func sourceNames(sources map[string]backtest.CandleSource) []string {
	out := make([]string, 0, len(sources))
	for name := range sources {
		out = append(out, name)
	}
	return out
}

func WithSources(fn func(config.DataConfig) (map[string]backtest.CandleSource, string, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sourcesFn = fn
		}
	}
}

func WithProfileRegistry(fn func(string) (*strategy.ProfileRegistry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.profilesFn = fn
		}
	}
}

func WithHTTPServer(fn func(httpapi.Config) (*httpapi.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.httpFn = fn
		}
	}
}
