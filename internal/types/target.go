package types

import "time"

// TargetStatus is the lifecycle state of a snipe target.
type TargetStatus string

const (
	TargetStatusPending   TargetStatus = "pending"
	TargetStatusReady     TargetStatus = "ready"
	TargetStatusActive    TargetStatus = "active"
	TargetStatusExecuting TargetStatus = "executing"
	TargetStatusCompleted TargetStatus = "completed"
	TargetStatusFailed    TargetStatus = "failed"
)

// Target is a candidate trade produced by the upstream listing detector.
// The scheduler is the only component that mutates it.
type Target struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`

	// PositionSize is the buy budget in quote currency.
	PositionSize float64 `json:"position_size"`
	// Confidence is the detector's pattern confidence, 0-100.
	Confidence float64 `json:"confidence"`
	// Pattern is the detector pattern tag (e.g. "sts:2"), informational.
	Pattern string `json:"pattern,omitempty"`

	Status     TargetStatus `json:"status"`
	ExecuteAt  time.Time    `json:"execute_at"`
	RetryCount int          `json:"retry_count"`

	// Risk overrides; zero means "use the user's preference / defaults".
	StopLossPct    float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct  float64 `json:"take_profit_pct,omitempty"`
	MaxHoldMinutes int     `json:"max_hold_minutes,omitempty"`

	// Filled in after a successful buy.
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	ExecutedQty   float64 `json:"executed_qty,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the target can no longer be scheduled.
func (t *Target) Terminal() bool {
	return t.Status == TargetStatusCompleted || t.Status == TargetStatusFailed
}

// Due reports whether the target is eligible for execution at now:
// ready targets immediately, active targets once their execution time
// has elapsed.
func (t *Target) Due(now time.Time) bool {
	switch t.Status {
	case TargetStatusReady:
		return true
	case TargetStatusActive:
		return !t.ExecuteAt.IsZero() && !now.Before(t.ExecuteAt)
	default:
		return false
	}
}
