//go:build wireinject

package app

import (
	"github.com/google/wire"

	"sniper/internal/config"
	"sniper/internal/metrics"
)

func buildAppWithWire(cfg *config.Config) (*App, error) {
	wire.Build(
		metrics.New,
		provideStore,
		provideStores,
		provideExchange,
		provideProfiles,
		provideResolver,
		provideExecutor,
		provideScheduler,
		provideMonitor,
		provideSweeper,
		provideHTTPServer,
		newApp,
	)
	return nil, nil
}
