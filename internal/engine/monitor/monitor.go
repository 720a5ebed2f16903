// Package monitor watches open positions and liquidates them when an exit
// trigger fires. Trigger evaluation is read-only; the mutual exclusion for
// the actual close is the open->partial claim in the store, so a position
// is sold at most once even with concurrent monitors.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sniper/internal/config"
	"sniper/internal/engine/price"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/store"
	"sniper/internal/types"
)

// Seller is the slice of the execution pipeline the monitor drives.
type Seller interface {
	SellPosition(ctx context.Context, pos *types.Position) (*types.OrderResult, error)
}

// PriceSource resolves the current market price for trigger evaluation.
type PriceSource interface {
	Resolve(ctx context.Context, symbol string) (float64, error)
}

// Trigger decides whether a position should be exited at the given price.
// Triggers are evaluated in registration order; the first hit wins.
type Trigger interface {
	// Reason is the exit reason recorded on close.
	Reason() string
	Hit(p *types.Position, lastPrice float64, now time.Time) bool
}

type stopLossTrigger struct{}

func (stopLossTrigger) Reason() string { return types.ExitReasonStopLoss }
func (stopLossTrigger) Hit(p *types.Position, lastPrice float64, _ time.Time) bool {
	return p.StopLossPrice > 0 && lastPrice <= p.StopLossPrice
}

type takeProfitTrigger struct{}

func (takeProfitTrigger) Reason() string { return types.ExitReasonTakeProfit }
func (takeProfitTrigger) Hit(p *types.Position, lastPrice float64, _ time.Time) bool {
	return p.TakeProfitPrice > 0 && lastPrice >= p.TakeProfitPrice
}

type maxHoldTrigger struct{}

func (maxHoldTrigger) Reason() string { return types.ExitReasonMaxHold }
func (maxHoldTrigger) Hit(p *types.Position, _ float64, now time.Time) bool {
	return !p.MaxHoldUntil.IsZero() && !now.Before(p.MaxHoldUntil)
}

// DefaultTriggers returns the standard exit rules in priority order:
// stop loss beats take profit beats max hold when several fire at once.
func DefaultTriggers() []Trigger {
	return []Trigger{stopLossTrigger{}, takeProfitTrigger{}, maxHoldTrigger{}}
}

type Monitor struct {
	positions store.PositionStore
	targets   store.TargetStore
	events    store.EventStore
	prices    PriceSource
	seller    Seller
	metrics   *metrics.Metrics
	cfg       config.EngineConfig
	triggers  []Trigger

	now func() time.Time
}

func New(positions store.PositionStore, targets store.TargetStore, events store.EventStore, prices PriceSource, seller Seller, m *metrics.Metrics, cfg config.EngineConfig) *Monitor {
	return &Monitor{
		positions: positions,
		targets:   targets,
		events:    events,
		prices:    prices,
		seller:    seller,
		metrics:   m,
		cfg:       cfg,
		triggers:  DefaultTriggers(),
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Infof("position monitor started, interval=%s", m.cfg.MonitorInterval)
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("position monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick sweeps stale claims back to open, then evaluates every open
// position against the exit triggers.
func (m *Monitor) Tick(ctx context.Context) {
	if n, err := m.positions.RevertStale(ctx, m.cfg.PartialClaimTimeout); err != nil {
		logger.Errorf("monitor: revert stale claims: %v", err)
	} else if n > 0 {
		logger.Warnf("monitor: reverted %d stale close claims", n)
	}

	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		logger.Errorf("monitor: list open positions: %v", err)
		return
	}
	if m.metrics != nil {
		m.metrics.ActivePositions.Set(float64(len(open)))
	}

	now := m.now()
	for i := range open {
		m.evaluate(ctx, &open[i], now)
	}
}

// evaluate checks one position. A missing price is not an error: new
// listings go quiet for stretches and the position is simply rechecked on
// the next tick.
func (m *Monitor) evaluate(ctx context.Context, pos *types.Position, now time.Time) {
	lastPrice, err := m.prices.Resolve(ctx, pos.Symbol)
	if err != nil {
		if !price.Unavailable(err) {
			logger.Warnf("monitor: price for %s: %v", pos.Symbol, err)
		}
		// Max hold must still fire while the market is unreadable, or a
		// dead listing would be held forever.
		if (maxHoldTrigger{}).Hit(pos, 0, now) {
			if err := m.close(ctx, pos, pos.EntryPrice, types.ExitReasonMaxHold); err != nil {
				logger.Errorf("monitor: close %s: %v", pos.ID, err)
			}
		}
		return
	}

	for _, trig := range m.triggers {
		if !trig.Hit(pos, lastPrice, now) {
			continue
		}
		logger.Infof("monitor: %s triggered for %s at %v (entry %v)",
			trig.Reason(), pos.Symbol, lastPrice, pos.EntryPrice)
		if err := m.close(ctx, pos, lastPrice, trig.Reason()); err != nil {
			logger.Errorf("monitor: close %s: %v", pos.ID, err)
		}
		return
	}
}

// close claims the position, liquidates it, and finalizes the P&L. A
// failed sell reverts the claim so the next tick retries.
func (m *Monitor) close(ctx context.Context, pos *types.Position, lastPrice float64, reason string) error {
	claimed, err := m.positions.Claim(ctx, pos.ID, types.PositionStatusOpen, types.PositionStatusPartial)
	if err != nil {
		return fmt.Errorf("claim position %s: %w", pos.ID, err)
	}
	if !claimed {
		logger.Debugf("monitor: position %s claimed elsewhere, skipping", pos.ID)
		return nil
	}

	m.appendEvent(ctx, pos, types.EventCloseTriggered, map[string]any{
		"reason": reason,
		"price":  lastPrice,
	})

	result, sellErr := m.seller.SellPosition(ctx, pos)
	if sellErr != nil {
		m.appendEvent(ctx, pos, types.EventCloseFailed, map[string]any{
			"reason": reason,
			"error":  sellErr.Error(),
		})
		if err := m.positions.Revert(ctx, pos.ID); err != nil {
			logger.Errorf("monitor: revert position %s after failed sell: %v", pos.ID, err)
		}
		return fmt.Errorf("sell position %s: %w", pos.ID, sellErr)
	}

	exitPrice := result.AvgPrice
	if exitPrice <= 0 {
		exitPrice = lastPrice
	}
	pnl, pnlPct := pos.PnL(exitPrice)
	if err := m.positions.Close(ctx, pos.ID, exitPrice, reason, pnl, pnlPct); err != nil {
		return fmt.Errorf("finalize position %s: %w", pos.ID, err)
	}
	if m.metrics != nil {
		m.metrics.ActivePositions.Dec()
	}
	m.finalizeTarget(ctx, pos.TargetID)
	m.appendEvent(ctx, pos, types.EventClosed, map[string]any{
		"reason":     reason,
		"exit_price": exitPrice,
		"pnl":        pnl,
		"pnl_pct":    pnlPct,
	})
	logger.Infof("monitor: closed %s reason=%s exit=%v pnl=%.4f (%.2f%%)",
		pos.Symbol, reason, exitPrice, pnl, pnlPct)
	return nil
}

// finalizeTarget makes sure the linked target ends up completed once its
// position is closed, covering crashes between buy and target completion.
func (m *Monitor) finalizeTarget(ctx context.Context, targetID string) {
	if m.targets == nil || targetID == "" {
		return
	}
	t, err := m.targets.Get(ctx, targetID)
	if err != nil || t == nil || t.Terminal() {
		return
	}
	if err := m.targets.SetStatus(ctx, targetID, types.TargetStatusCompleted, ""); err != nil {
		logger.Warnf("monitor: finalize target %s: %v", targetID, err)
	}
}

// ClosePosition liquidates one position on operator request.
func (m *Monitor) ClosePosition(ctx context.Context, id string) error {
	pos, err := m.positions.Get(ctx, id)
	if err != nil {
		return err
	}
	if pos == nil {
		return fmt.Errorf("position %s not found", id)
	}
	if pos.Status != types.PositionStatusOpen {
		return fmt.Errorf("position %s is %s", id, pos.Status)
	}
	lastPrice, err := m.prices.Resolve(ctx, pos.Symbol)
	if err != nil {
		// Manual closes proceed regardless; the fill price sets the P&L.
		lastPrice = pos.EntryPrice
	}
	return m.close(ctx, pos, lastPrice, types.ExitReasonManual)
}

// CloseAllPositions liquidates every open position, continuing past
// individual failures and reporting them joined.
func (m *Monitor) CloseAllPositions(ctx context.Context) (int, error) {
	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for i := range open {
		if err := m.ClosePosition(ctx, open[i].ID); err != nil {
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// OpenSymbols returns the distinct symbols of open positions, used to
// resubscribe the price stream after a restart.
func (m *Monitor) OpenSymbols(ctx context.Context) ([]string, error) {
	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(open))
	var symbols []string
	for _, p := range open {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		symbols = append(symbols, p.Symbol)
	}
	return symbols, nil
}

func (m *Monitor) appendEvent(ctx context.Context, pos *types.Position, kind string, details map[string]any) {
	if m.events == nil {
		return
	}
	ev := &types.EngineEvent{
		TargetID: pos.TargetID,
		Symbol:   pos.Symbol,
		Kind:     kind,
		Details:  details,
		At:       m.now(),
	}
	if err := m.events.AppendEvent(ctx, ev); err != nil {
		logger.Warnf("monitor: append %s event for %s: %v", kind, pos.ID, err)
	}
}
