// Package reconcile runs the background sweep over executions whose
// exchange status never became terminal: placements accepted under
// ambiguity, partial fills, and zero-quantity acknowledgements. The sweep
// asks the exchange for the authoritative order state, completes the audit
// record, and settles zero-quantity placements: a late fill is pushed into
// the linked position so the exit monitor picks it up, and a placement
// that settled without any fill closes the position and fails the target.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"sniper/internal/gateway/exchange"
	"sniper/internal/logger"
	"sniper/internal/store"
	"sniper/internal/types"
)

const sweepBatch = 50

type Sweeper struct {
	client    exchange.Client
	execs     store.ExecutionStore
	positions store.PositionStore
	targets   store.TargetStore
	events    store.EventStore

	cron *cron.Cron
	spec string
}

func New(client exchange.Client, st *store.Stores, spec string) *Sweeper {
	return &Sweeper{
		client:    client,
		execs:     st.Executions,
		positions: st.Positions,
		targets:   st.Targets,
		events:    st.Events,
		cron:      cron.New(),
		spec:      spec,
	}
}

// Start schedules the sweep and runs it until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if n, err := s.Sweep(ctx); err != nil {
			logger.Errorf("reconcile: sweep: %v", err)
		} else if n > 0 {
			logger.Infof("reconcile: completed %d records", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	logger.Infof("reconciliation sweep scheduled: %s", s.spec)
	return nil
}

// Sweep runs one pass and returns the number of records it completed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	recs, err := s.execs.ListUnreconciled(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range recs {
		if err := s.reconcileOne(ctx, &recs[i]); err != nil {
			logger.Warnf("reconcile: record %s (order %s): %v", recs[i].ID, recs[i].OrderID, err)
			continue
		}
		done++
	}
	return done, nil
}

func (s *Sweeper) reconcileOne(ctx context.Context, rec *types.ExecutionRecord) error {
	status, err := s.client.GetOrderStatus(ctx, rec.Symbol, rec.OrderID)
	if err != nil {
		return err
	}
	if !status.Definitive() {
		// Still in flight; a later sweep picks it up again.
		return nil
	}

	avg := status.Price
	if status.ExecutedQty > 0 && status.ExecutedQuote > 0 {
		avg = status.ExecutedQuote / status.ExecutedQty
	}
	if avg <= 0 && status.ExecutedQty > 0 {
		avg = rec.RequestedPrice
	}
	if err := s.execs.ApplyReconciliation(ctx, rec.ID, status.Status, status.ExecutedQty, status.ExecutedQuote, avg); err != nil {
		return err
	}
	s.settlePlacement(ctx, rec, status, avg)

	if s.events != nil {
		ev := &types.EngineEvent{
			TargetID: rec.TargetID,
			Symbol:   rec.Symbol,
			Kind:     types.EventReconciled,
			Details: map[string]any{
				"order_id":     rec.OrderID,
				"status":       status.Status,
				"executed_qty": status.ExecutedQty,
			},
			At: time.Now(),
		}
		if err := s.events.AppendEvent(ctx, ev); err != nil {
			logger.Warnf("reconcile: append event for %s: %v", rec.ID, err)
		}
	}
	logger.Infof("reconcile: order %s on %s settled %s qty=%v",
		rec.OrderID, rec.Symbol, status.Status, status.ExecutedQty)
	return nil
}

// settlePlacement resolves the zero-quantity position behind an ambiguous
// placement. A fill makes the position real so the exit monitor starts
// evaluating it; no fill at all closes the position and fails the target.
// Positions that already carry quantity had their fills accounted at
// placement and are left alone.
func (s *Sweeper) settlePlacement(ctx context.Context, rec *types.ExecutionRecord, status *exchange.OrderResponse, avg float64) {
	if rec.PositionID == "" {
		return
	}
	pos, err := s.positions.Get(ctx, rec.PositionID)
	if err != nil {
		logger.Warnf("reconcile: load position %s: %v", rec.PositionID, err)
		return
	}
	if pos == nil || pos.Status != types.PositionStatusOpen || pos.Quantity > 0 {
		return
	}

	if status.ExecutedQty > 0 {
		sl, tp := pos.StopLossPrice, pos.TakeProfitPrice
		if pos.EntryPrice > 0 && avg > 0 {
			// The stop and take-profit were derived from the price the
			// placement was valued at; rescale them to the real entry.
			ratio := avg / pos.EntryPrice
			sl *= ratio
			tp *= ratio
		}
		if err := s.positions.ApplyFill(ctx, pos.ID, status.ExecutedQty, avg, sl, tp); err != nil {
			logger.Warnf("reconcile: apply fill to position %s: %v", pos.ID, err)
			return
		}
		if err := s.targets.Complete(ctx, rec.TargetID, avg, status.ExecutedQty); err != nil {
			logger.Warnf("reconcile: record fill on target %s: %v", rec.TargetID, err)
		}
		logger.Infof("reconcile: position %s filled late, qty=%v entry=%v", pos.ID, status.ExecutedQty, avg)
		return
	}

	if err := s.positions.Close(ctx, pos.ID, 0, "unfilled", 0, 0); err != nil {
		logger.Warnf("reconcile: close unfilled position %s: %v", pos.ID, err)
		return
	}
	msg := fmt.Sprintf("order %s settled %s without fill", rec.OrderID, status.Status)
	if err := s.targets.SetStatus(ctx, rec.TargetID, types.TargetStatusFailed, msg); err != nil {
		logger.Warnf("reconcile: fail target %s: %v", rec.TargetID, err)
	}
	logger.Infof("reconcile: %s, target %s failed", msg, rec.TargetID)
}
