package types

import "time"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType supported by the execution pipeline.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Outcome of an execution attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// ExecutionRecord is the immutable audit row written once per real order
// attempt. It is also the source of truth for the idempotency guard:
// a success/BUY row for a target means the target has already been bought.
type ExecutionRecord struct {
	ID         string `json:"id"`
	TargetID   string `json:"target_id"`
	PositionID string `json:"position_id,omitempty"`
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	Side       Side   `json:"side"`

	RequestedQty   float64 `json:"requested_qty"`
	RequestedPrice float64 `json:"requested_price,omitempty"`
	ExecutedQty    float64 `json:"executed_qty"`
	ExecutedPrice  float64 `json:"executed_price"`
	TotalCost      float64 `json:"total_cost"`

	OrderID        string `json:"order_id,omitempty"`
	ExchangeStatus string `json:"exchange_status,omitempty"`
	ChildOrders    int    `json:"child_orders,omitempty"`

	LatencyMs    int64   `json:"latency_ms"`
	Outcome      Outcome `json:"outcome"`
	ErrorMessage string  `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
