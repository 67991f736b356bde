// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"digital-fulfillment/internal/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Closer 是关停阶段需要按顺序释放的资源
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// AppInfo 包含了启动一个后台 worker 所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	// HTTPAddr 为空时不启动 HTTP 服务
	HTTPAddr string
	// RegisterHandlers 允许服务注册自己的只读 HTTP 路由
	RegisterHandlers func(mux *http.ServeMux)
	// Run 是主循环，应在 ctx 取消后返回
	Run func(ctx context.Context) error
	// Closers 在主循环和 HTTP 服务都退出后按顺序执行
	Closers []Closer
}

// StartService 封装了通用的启动和优雅关停逻辑：
// 收到 SIGINT/SIGTERM 或主循环退出时，先停 HTTP 服务，再依次关闭 Closers。
func StartService(parent context.Context, info AppInfo) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	log := logger.Ctx(ctx)

	var server *http.Server
	if info.HTTPAddr != "" {
		mux := http.NewServeMux()
		if info.RegisterHandlers != nil {
			info.RegisterHandlers(mux)
		}
		server = &http.Server{Addr: info.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info().Str("addr", info.HTTPAddr).Msgf("%s status server listening", info.ServiceName)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "listen on %s", info.HTTPAddr)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error shutting down http server")
				return nil
			}
			log.Info().Msg("HTTP server shut down.")
			return nil
		})
	}

	g.Go(func() error {
		// 主循环结束时同样触发关停
		defer stop()
		return info.Run(gctx)
	})

	runErr := g.Wait()
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, c := range info.Closers {
		if err := c.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Str("component", c.Name).Msg("Error during shutdown")
			continue
		}
		log.Info().Str("component", c.Name).Msg("Closed")
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return runErr
}
