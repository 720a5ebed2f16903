// Package app wires configuration, storage, the exchange gateway and the
// engine loops together and runs them under one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"sniper/internal/config"
	"sniper/internal/engine/monitor"
	"sniper/internal/engine/reconcile"
	"sniper/internal/engine/scheduler"
	"sniper/internal/gateway/mexc"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/store/gormstore"
	httpapi "sniper/internal/transport/http"
)

type App struct {
	cfg     *config.Config
	db      *gormstore.Store
	client  *mexc.Client
	sched   *scheduler.Scheduler
	mon     *monitor.Monitor
	sweeper *reconcile.Sweeper
	httpSrv *httpapi.Server
	metrics *metrics.Metrics

	startedAt time.Time
}

// New builds the application from configuration without starting it.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

// Run starts the HTTP server, the scheduler, the position monitor, the
// price stream and the reconciliation sweep, and blocks until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.startedAt = time.Now()

	group, ctx := errgroup.WithContext(ctx)

	// Resubscribe the stream to every symbol we still hold, so a restart
	// never leaves an open position without market data.
	symbols := a.cfg.Exchange.StreamSymbols
	if open, err := a.mon.OpenSymbols(ctx); err != nil {
		logger.Warnf("app: rehydrate open symbols: %v", err)
	} else {
		symbols = mergeSymbols(symbols, open)
	}
	// The stream redials until ctx is cancelled, so it must not run on the
	// startup path.
	group.Go(func() error {
		a.client.StartStream(ctx, symbols)
		return nil
	})

	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start reconciliation sweep: %w", err)
	}

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return ignoreCancel(a.sched.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(a.mon.Run(ctx))
	})

	err := group.Wait()
	a.Close()
	return err
}

// Close releases resources. Safe to call twice.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Warnf("app: close store: %v", err)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func mergeSymbols(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
