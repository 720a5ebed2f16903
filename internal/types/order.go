package types

// OrderRequest is a normalized, exchange-ready order. Quantity and Price
// carry the precision-formatted strings the exchange expects; the float
// mirrors exist for bookkeeping only.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Quantity    string
	Price       string
	TimeInForce string

	QuantityF float64
	PriceF    float64
	// ClientOrderID makes retries distinguishable on the exchange side.
	ClientOrderID string
}

// OrderResult is the reconciled outcome of one or more child orders.
type OrderResult struct {
	OrderID        string
	ClientOrderID  string
	ExchangeStatus string

	ExecutedQty   float64
	ExecutedQuote float64
	AvgPrice      float64

	// ChildOrders counts the exchange orders behind this logical result
	// when a budget was split across per-order caps.
	ChildOrders int

	// Pending marks a placement accepted by the exchange that has not yet
	// reported a definitive fill. Treated as success, revisited by the
	// reconciliation sweep.
	Pending bool
}
