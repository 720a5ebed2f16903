package types

import "time"

// PositionStatus is the lifecycle state of a holding.
type PositionStatus string

const (
	PositionStatusOpen PositionStatus = "open"
	// PositionStatusPartial marks a close in progress. It is a claim, not a
	// fill state: at most one worker may hold it per position.
	PositionStatusPartial PositionStatus = "partial"
	PositionStatusClosed  PositionStatus = "closed"
)

// Position is an open or closed holding created from a filled buy.
type Position struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id"`
	UserID   string `json:"user_id"`
	Symbol   string `json:"symbol"`

	EntryPrice float64 `json:"entry_price"`
	Quantity   float64 `json:"quantity"`

	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	MaxHoldUntil    time.Time `json:"max_hold_until"`

	Status PositionStatus `json:"status"`

	// Set once closed.
	ExitPrice      float64    `json:"exit_price,omitempty"`
	ExitReason     string     `json:"exit_reason,omitempty"`
	RealizedPnL    float64    `json:"realized_pnl,omitempty"`
	RealizedPnLPct float64    `json:"realized_pnl_pct,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`

	// ClaimedAt records when the position entered partial, so a stale
	// claim from an interrupted close can be reverted after a timeout.
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exit reasons recorded on close.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonMaxHold    = "max_hold"
	ExitReasonManual     = "manual"
)

// PnL returns the long-side profit for a hypothetical exit at price, in
// quote currency and as a percentage of entry.
func (p *Position) PnL(price float64) (abs float64, pct float64) {
	if p.EntryPrice <= 0 || price <= 0 {
		return 0, 0
	}
	diff := price - p.EntryPrice
	return diff * p.Quantity, diff / p.EntryPrice * 100
}
