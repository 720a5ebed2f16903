package types

// RiskPreferences are the user-level defaults applied when a target does
// not carry its own overrides.
type RiskPreferences struct {
	UserID string `json:"user_id"`

	// DefaultBuyAmount is the quote-currency budget used when a target
	// has no position size.
	DefaultBuyAmount float64 `json:"default_buy_amount"`

	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`

	// TakeProfitTier selects a named tier from the risk profile file;
	// empty means use TakeProfitPct directly.
	TakeProfitTier string `json:"take_profit_tier,omitempty"`

	MaxHoldMinutes int `json:"max_hold_minutes"`
}

// RiskParams are the fully resolved risk values used to build a position.
type RiskParams struct {
	StopLossPct    float64
	TakeProfitPct  float64
	MaxHoldMinutes int
}
