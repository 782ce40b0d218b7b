//go:build wireinject
// +build wireinject

package di

import (
	"TokenPulse/internal/handler/api"
	"TokenPulse/pkg/config"
	"TokenPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, info api.ServiceInfo) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideCollector,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCacheBackend,
		ProvideStore,
		ProvidePublisher,

		// Feeds and use cases
		ProvideSources,
		ProvideAggregator,
		ProvideTopMovers,

		// Realtime
		ProvideMessagePipeline,
		ProvideBroadcaster,

		// HTTP
		ProvideTokenHandler,
		ProvideWSHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
