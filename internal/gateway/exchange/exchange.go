// Package exchange defines the exchange-API abstraction consumed by the
// execution engine. Implementations live under gateway/mexc; tests supply
// mocks.
package exchange

import (
	"context"

	"sniper/internal/types"
)

// Client is the surface the engine consumes from the exchange.
type Client interface {
	// GetTicker returns 24h ticker data including the last traded price.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetOrderBook returns the top of book up to depth levels.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// GetCurrentPrice returns the last price from the price endpoint.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// GetSymbolRules returns the trading constraints for a symbol.
	GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)

	// PlaceOrder submits an order and returns the immediate response,
	// which may lack a definitive status/executed-quantity pair.
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*OrderResponse, error)

	// GetOrderStatus queries the authoritative state of a placed order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderResponse, error)

	// GetAccountBalance returns free balances keyed by asset.
	GetAccountBalance(ctx context.Context) (map[string]float64, error)

	// Ping probes connectivity, used by the status endpoint.
	Ping(ctx context.Context) error
}

// StreamPriceSource exposes the last price seen on a market-data stream.
// A zero return means no stream data is available for the symbol.
type StreamPriceSource interface {
	LastStreamPrice(symbol string) float64
}

// Ticker is the subset of 24h ticker data the resolver needs.
type Ticker struct {
	Symbol    string
	LastPrice float64
	BidPrice  float64
	AskPrice  float64
	Volume    float64
}

// OrderBook holds bid/ask levels, best first.
type OrderBook struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

// Level is one order-book price level.
type Level struct {
	Price float64
	Qty   float64
}

// MidPrice returns (best bid + best ask) / 2, or 0 when either side is
// empty or non-positive.
func (b *OrderBook) MidPrice() float64 {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	bid, ask := b.Bids[0].Price, b.Asks[0].Price
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SymbolRules are the exchange precision and notional constraints for a
// symbol, as returned by the exchange-info endpoint.
type SymbolRules struct {
	Symbol string

	// StepSize is the base-asset quantity increment, e.g. "0.01".
	StepSize string
	// TickSize is the price increment.
	TickSize string

	MinQty string
	MaxQty string

	// MinNotional / MaxNotional bound the order value in quote currency.
	// MaxNotional may be empty when the exchange imposes no cap.
	MinNotional string
	MaxNotional string

	// TradingEnabled is false for halted or not-yet-listed symbols.
	TradingEnabled bool
}

// OrderResponse is the exchange's view of an order, either from the
// placement response or from an order-status query.
type OrderResponse struct {
	OrderID       string
	ClientOrderID string
	Symbol        string

	// Status is the raw exchange status: NEW, FILLED, PARTIALLY_FILLED,
	// PENDING, CANCELED, REJECTED, EXPIRED or empty when the response was
	// incomplete.
	Status string

	ExecutedQty   float64
	ExecutedQuote float64
	Price         float64

	TransactTime int64
}

// Definitive reports whether the response carries enough information to
// classify the order without a follow-up status query.
func (r *OrderResponse) Definitive() bool {
	return r != nil && r.Status != "" && (r.ExecutedQty > 0 || terminalStatus(r.Status))
}

// Rejected reports a terminal REJECTED status with no fill.
func (r *OrderResponse) Rejected() bool {
	return r != nil && r.Status == "REJECTED" && r.ExecutedQty <= 0
}

// Unfilled reports an order the exchange settled without any fill:
// CANCELED or EXPIRED with zero executed quantity, the usual end state of
// an IOC limit order that found no liquidity.
func (r *OrderResponse) Unfilled() bool {
	if r == nil || r.ExecutedQty > 0 {
		return false
	}
	return r.Status == "CANCELED" || r.Status == "EXPIRED"
}

func terminalStatus(s string) bool {
	switch s {
	case "FILLED", "CANCELED", "REJECTED", "EXPIRED":
		return true
	}
	return false
}
