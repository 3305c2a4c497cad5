package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sable/internal/backtest"
	"sable/internal/config"
	httpapi "sable/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg         *config.Config
	candleStore *backtest.CandleStore
	runStore    *backtest.RunStore
	svc         *backtest.Service
	sim         *backtest.Simulator
	httpSrv     *httpapi.Server
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务并阻塞，ctx 取消后关闭存储。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	// 后台任务与 HTTP 生命周期对齐。
	a.svc.SetContext(ctx)
	a.sim.SetContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.candleStore != nil {
		_ = a.candleStore.Close()
	}
	if a.runStore != nil {
		_ = a.runStore.Close()
	}
}

// Service 暴露数据服务实例，供测试与回放使用。
func (a *App) Service() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

// Simulator 暴露回测模拟器实例。
func (a *App) Simulator() *backtest.Simulator {
	if a == nil {
		return nil
	}
	return a.sim
}
