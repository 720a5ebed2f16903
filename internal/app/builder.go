package app

import (
	"strings"

	"sniper/internal/config"
	"sniper/internal/engine/executor"
	"sniper/internal/engine/monitor"
	"sniper/internal/engine/price"
	"sniper/internal/engine/reconcile"
	"sniper/internal/engine/scheduler"
	"sniper/internal/gateway/mexc"
	"sniper/internal/metrics"
	"sniper/internal/store"
	"sniper/internal/store/gormstore"
	httpapi "sniper/internal/transport/http"
)

func provideStore(cfg *config.Config) (*gormstore.Store, error) {
	return gormstore.Open(cfg.Storage.Path)
}

func provideStores(db *gormstore.Store) *store.Stores {
	return db.Stores()
}

func provideExchange(cfg *config.Config, m *metrics.Metrics) *mexc.Client {
	return mexc.New(mexc.Config{
		RESTBaseURL: cfg.Exchange.RESTBaseURL,
		WSBaseURL:   cfg.Exchange.WSBaseURL,
		APIKey:      cfg.Exchange.APIKey,
		SecretKey:   cfg.Exchange.SecretKey,
		HTTPTimeout: cfg.Exchange.HTTPTimeout,
		RecvWindow:  cfg.Exchange.RecvWindow,
	}, m)
}

func provideProfiles(cfg *config.Config) (*config.ProfileRegistry, error) {
	if strings.TrimSpace(cfg.Risk.ProfilesPath) == "" {
		return nil, nil
	}
	return config.NewProfileRegistry(cfg.Risk.ProfilesPath)
}

func provideResolver(cfg *config.Config, client *mexc.Client) *price.Resolver {
	return price.NewResolver(client, client,
		cfg.Engine.PriceAttempts, cfg.Engine.PriceRetryDelay, cfg.Engine.OrderBookDepth)
}

func provideExecutor(client *mexc.Client, resolver *price.Resolver, stores *store.Stores,
	profiles *config.ProfileRegistry, m *metrics.Metrics, cfg *config.Config) *executor.Executor {
	return executor.New(client, resolver, stores, profiles, m, cfg.Engine, cfg.Risk)
}

func provideScheduler(stores *store.Stores, exec *executor.Executor, m *metrics.Metrics, cfg *config.Config) *scheduler.Scheduler {
	return scheduler.New(stores.Targets, exec, m, cfg.Engine)
}

func provideMonitor(stores *store.Stores, resolver *price.Resolver, exec *executor.Executor,
	m *metrics.Metrics, cfg *config.Config) *monitor.Monitor {
	return monitor.New(stores.Positions, stores.Targets, stores.Events, resolver, exec, m, cfg.Engine)
}

func provideSweeper(client *mexc.Client, stores *store.Stores, cfg *config.Config) *reconcile.Sweeper {
	return reconcile.New(client, stores, cfg.Engine.ReconcileSpec)
}

func provideHTTPServer(cfg *config.Config, sched *scheduler.Scheduler, mon *monitor.Monitor,
	stores *store.Stores, client *mexc.Client, m *metrics.Metrics) (*httpapi.Server, error) {
	return httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		Scheduler:    sched,
		Monitor:      mon,
		Stores:       stores,
		Client:       client,
		Metrics:      m,
		BreakerState: client.BreakerState,
	})
}

func newApp(cfg *config.Config, db *gormstore.Store, client *mexc.Client,
	sched *scheduler.Scheduler, mon *monitor.Monitor, sweeper *reconcile.Sweeper,
	httpSrv *httpapi.Server, m *metrics.Metrics) *App {
	return &App{
		cfg:     cfg,
		db:      db,
		client:  client,
		sched:   sched,
		mon:     mon,
		sweeper: sweeper,
		httpSrv: httpSrv,
		metrics: m,
	}
}
