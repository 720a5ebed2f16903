// Package store defines the persistence interfaces the engine depends on.
// The persistent store is the single source of truth for claims: all
// cross-worker mutual exclusion goes through conditional status updates
// here, never through in-memory locks.
package store

import (
	"context"
	"time"

	"sniper/internal/types"
)

// TargetStore persists snipe targets.
type TargetStore interface {
	// Insert creates a target (used by the detector upstream and tests).
	Insert(ctx context.Context, t *types.Target) error

	// Get returns the target, or nil when it does not exist.
	Get(ctx context.Context, id string) (*types.Target, error)

	// ListDue returns candidates for execution: status ready, or active
	// with execution time elapsed, retry count below cap, owned by owner
	// or system-owned (empty user id).
	ListDue(ctx context.Context, owner string, retryCap int, now time.Time) ([]types.Target, error)

	// Claim performs the atomic conditional transition from -> to.
	// It returns false (and no error) when the guard did not match,
	// meaning another worker owns the target.
	Claim(ctx context.Context, id string, from, to types.TargetStatus) (bool, error)

	// SetStatus unconditionally moves the target to status, storing an
	// optional error message.
	SetStatus(ctx context.Context, id string, status types.TargetStatus, errMsg string) error

	// Complete marks the target completed with its fill data.
	Complete(ctx context.Context, id string, execPrice, execQty float64) error

	// IncrementRetry bumps retryCount after an exchange rejection.
	IncrementRetry(ctx context.Context, id string) error

	// ListRecent returns the most recent targets for the operator API.
	ListRecent(ctx context.Context, limit int) ([]types.Target, error)
}

// PositionStore persists positions.
type PositionStore interface {
	Insert(ctx context.Context, p *types.Position) error

	Get(ctx context.Context, id string) (*types.Position, error)

	// ListOpen returns all open positions (used each monitor tick and for
	// cache rehydration on restart).
	ListOpen(ctx context.Context) ([]types.Position, error)

	// Claim performs the atomic open->partial (or back) transition.
	Claim(ctx context.Context, id string, from, to types.PositionStatus) (bool, error)

	// ApplyFill overwrites the fill-derived fields of an open position
	// once reconciliation learns the authoritative executed quantity and
	// price of an ambiguous placement.
	ApplyFill(ctx context.Context, id string, qty, entry, stopLoss, takeProfit float64) error

	// Close finalizes the position with exit data and realized P&L.
	Close(ctx context.Context, id string, exitPrice float64, reason string, pnl, pnlPct float64) error

	// Revert returns a partial position to open after a failed close.
	Revert(ctx context.Context, id string) error

	// RevertStale returns partial positions whose claim is older than
	// maxAge back to open, so a crashed close never wedges a position.
	RevertStale(ctx context.Context, maxAge time.Duration) (int, error)

	ListRecent(ctx context.Context, limit int) ([]types.Position, error)
}

// ExecutionStore is the insert-only audit log of order attempts.
type ExecutionStore interface {
	Insert(ctx context.Context, rec *types.ExecutionRecord) error

	// FindSuccessfulBuy returns the prior successful buy record for a
	// target, or nil when none exists. This backs the idempotency guard.
	FindSuccessfulBuy(ctx context.Context, targetID string) (*types.ExecutionRecord, error)

	// ListUnreconciled returns success records whose exchange status is
	// still non-terminal (pending or zero-quantity placements), for the
	// background reconciliation sweep.
	ListUnreconciled(ctx context.Context, limit int) ([]types.ExecutionRecord, error)

	// ApplyReconciliation completes the exchange-reported fill fields of
	// a non-terminal record. The business outcome is never rewritten.
	ApplyReconciliation(ctx context.Context, id, status string, qty, quote, price float64) error

	ListByTarget(ctx context.Context, targetID string) ([]types.ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]types.ExecutionRecord, error)
}

// EventStore is an append-only log of engine operations (executions,
// close triggers, reconciliations) for the operator API. Failures here
// are logged and swallowed: audit completeness never reverts a trade.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *types.EngineEvent) error
	ListEvents(ctx context.Context, targetID string, limit int) ([]types.EngineEvent, error)
}

// Stores bundles the per-entity repositories for constructor wiring.
type Stores struct {
	Targets     TargetStore
	Positions   PositionStore
	Executions  ExecutionStore
	Events      EventStore
	Preferences PreferenceStore
}

// PreferenceStore reads user-level risk preferences.
type PreferenceStore interface {
	// GetRiskPreferences returns the stored preferences for a user, or
	// nil when the user has none (callers fall back to config defaults).
	GetRiskPreferences(ctx context.Context, userID string) (*types.RiskPreferences, error)
}
