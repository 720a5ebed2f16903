//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package app

import (
	"sniper/internal/config"
	"sniper/internal/metrics"
)

func buildAppWithWire(cfg *config.Config) (*App, error) {
	m := metrics.New()
	db, err := provideStore(cfg)
	if err != nil {
		return nil, err
	}
	stores := provideStores(db)
	client := provideExchange(cfg, m)
	profiles, err := provideProfiles(cfg)
	if err != nil {
		return nil, err
	}
	resolver := provideResolver(cfg, client)
	exec := provideExecutor(client, resolver, stores, profiles, m, cfg)
	sched := provideScheduler(stores, exec, m, cfg)
	mon := provideMonitor(stores, resolver, exec, m, cfg)
	sweeper := provideSweeper(client, stores, cfg)
	httpSrv, err := provideHTTPServer(cfg, sched, mon, stores, client, m)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, db, client, sched, mon, sweeper, httpSrv, m), nil
}
