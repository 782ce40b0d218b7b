package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "TokenPulse/internal/domain/repository"
	"TokenPulse/internal/service/realtime"
	pkgcache "TokenPulse/pkg/cache"
	"TokenPulse/pkg/config"
	xhttp "TokenPulse/pkg/http"
	applogger "TokenPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	httpServer  *xhttp.Server
	broadcaster *realtime.Broadcaster
	publisher   domrepo.UpdatePublisher
	cache       pkgcache.Service
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	broadcaster *realtime.Broadcaster,
	publisher domrepo.UpdatePublisher,
	cache pkgcache.Service,
) *App {
	return &App{
		cfg:         cfg,
		log:         l,
		httpServer:  httpServer,
		broadcaster: broadcaster,
		publisher:   publisher,
		cache:       cache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the broadcaster and the HTTP server and blocks until ctx
// is done, then shuts everything down.
func (a *App) RunContext(ctx context.Context) error {
	a.broadcaster.Start(context.WithoutCancel(ctx))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http.start_failed", applogger.Error(err))
		a.broadcaster.Stop()
		return err
	}
	a.log.Info("app.started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("cache_mode", a.cfg.Cache.Mode),
		applogger.String("publisher", a.cfg.Publisher.Type),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops components in dependency order: HTTP intake, realtime
// clients, then infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.broadcaster.Stop()

	if err := a.publisher.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn("cache close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
