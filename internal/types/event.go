package types

import "time"

// Engine event kinds.
const (
	EventBuyExecuted    = "buy_executed"
	EventBuyDeferred    = "buy_deferred"
	EventBuyFailed      = "buy_failed"
	EventCloseTriggered = "close_triggered"
	EventCloseFailed    = "close_failed"
	EventClosed         = "position_closed"
	EventReconciled     = "order_reconciled"
)

// EngineEvent is one append-only operation log entry.
type EngineEvent struct {
	ID       uint           `json:"id,omitempty"`
	TargetID string         `json:"target_id,omitempty"`
	Symbol   string         `json:"symbol"`
	Kind     string         `json:"kind"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}
