// Package mexc implements the exchange gateway against MEXC's spot API.
// MEXC mirrors the Binance REST surface, so the client is built on the
// go-binance SDK with the base URL pointed at MEXC.
package mexc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"

	"sniper/internal/gateway/exchange"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/pkg/circuit"
	"sniper/internal/pkg/convert"
	"sniper/internal/types"
)

type Client struct {
	cfg     Config
	api     *binance.Client
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	stream  *PriceStream
}

var _ exchange.Client = (*Client)(nil)

func New(cfg Config, m *metrics.Metrics) *Client {
	final := cfg.withDefaults()
	api := binance.NewClient(final.APIKey, final.SecretKey)
	api.BaseURL = final.RESTBaseURL
	api.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}

	breaker := circuit.NewBreaker("mexc-rest", final.BreakerThreshold, final.BreakerTimeout)
	if m != nil {
		breaker.OnStateChange(func(name string, _, to circuit.State) {
			m.CircuitState.WithLabelValues(name).Set(float64(to))
		})
	}
	return &Client{
		cfg:     final,
		api:     api,
		breaker: breaker,
		metrics: m,
		stream:  NewPriceStream(final.WSBaseURL),
	}
}

// Stream returns the websocket price cache; the resolver consumes it as
// the second source in the fallback chain.
func (c *Client) Stream() *PriceStream { return c.stream }

// guard wraps an exchange call with the circuit breaker and metrics.
func (c *Client) guard(endpoint string, call func() error) error {
	if !c.breaker.Allow() {
		err := fmt.Errorf("mexc: circuit open, %s suppressed", endpoint)
		c.metrics.ObserveAPICall(endpoint, err)
		return err
	}
	err := call()
	if err != nil {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	c.metrics.ObserveAPICall(endpoint, err)
	return err
}

func (c *Client) GetTicker(ctx context.Context, sym string) (*exchange.Ticker, error) {
	var out *exchange.Ticker
	err := c.guard("ticker", func() error {
		stats, err := c.api.NewListPriceChangeStatsService().Symbol(sym).Do(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 || stats[0] == nil {
			return fmt.Errorf("mexc: empty ticker for %s", sym)
		}
		s := stats[0]
		out = &exchange.Ticker{
			Symbol:    s.Symbol,
			LastPrice: convert.ParseFloat(s.LastPrice),
			BidPrice:  convert.ParseFloat(s.BidPrice),
			AskPrice:  convert.ParseFloat(s.AskPrice),
			Volume:    convert.ParseFloat(s.Volume),
		}
		return nil
	})
	return out, err
}

func (c *Client) GetOrderBook(ctx context.Context, sym string, depth int) (*exchange.OrderBook, error) {
	if depth <= 0 {
		depth = 5
	}
	var out *exchange.OrderBook
	err := c.guard("depth", func() error {
		res, err := c.api.NewDepthService().Symbol(sym).Limit(depth).Do(ctx)
		if err != nil {
			return err
		}
		book := &exchange.OrderBook{Symbol: sym}
		for _, b := range res.Bids {
			book.Bids = append(book.Bids, exchange.Level{
				Price: convert.ParseFloat(b.Price),
				Qty:   convert.ParseFloat(b.Quantity),
			})
		}
		for _, a := range res.Asks {
			book.Asks = append(book.Asks, exchange.Level{
				Price: convert.ParseFloat(a.Price),
				Qty:   convert.ParseFloat(a.Quantity),
			})
		}
		out = book
		return nil
	})
	return out, err
}

func (c *Client) GetCurrentPrice(ctx context.Context, sym string) (float64, error) {
	var price float64
	err := c.guard("price", func() error {
		prices, err := c.api.NewListPricesService().Symbol(sym).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 || prices[0] == nil {
			return fmt.Errorf("mexc: no price for %s", sym)
		}
		price = convert.ParseFloat(prices[0].Price)
		return nil
	})
	return price, err
}

func (c *Client) GetSymbolRules(ctx context.Context, sym string) (*exchange.SymbolRules, error) {
	var out *exchange.SymbolRules
	err := c.guard("exchangeInfo", func() error {
		info, err := c.api.NewExchangeInfoService().Symbol(sym).Do(ctx)
		if err != nil {
			return err
		}
		for i := range info.Symbols {
			s := &info.Symbols[i]
			if s.Symbol != sym {
				continue
			}
			out = rulesFromSymbol(s)
			return nil
		}
		return fmt.Errorf("mexc: symbol %s not in exchange info", sym)
	})
	return out, err
}

// rulesFromSymbol reads the filter maps directly instead of relying on
// SDK filter accessors: MEXC reports MIN_NOTIONAL where Binance has
// migrated to NOTIONAL, and the accessors only know one of them.
func rulesFromSymbol(s *binance.Symbol) *exchange.SymbolRules {
	rules := &exchange.SymbolRules{
		Symbol:         s.Symbol,
		TradingEnabled: strings.EqualFold(s.Status, "TRADING"),
	}
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			rules.StepSize = filterStr(f, "stepSize")
			rules.MinQty = filterStr(f, "minQty")
			rules.MaxQty = filterStr(f, "maxQty")
		case "PRICE_FILTER":
			rules.TickSize = filterStr(f, "tickSize")
		case "MIN_NOTIONAL":
			rules.MinNotional = filterStr(f, "minNotional")
		case "NOTIONAL":
			rules.MinNotional = filterStr(f, "minNotional")
			rules.MaxNotional = filterStr(f, "maxNotional")
		case "MAX_NOTIONAL":
			rules.MaxNotional = filterStr(f, "maxNotional")
		}
	}
	return rules
}

func filterStr(f map[string]interface{}, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	if v, ok := f[key]; ok {
		return strconv.FormatFloat(convert.ToFloat64(v), 'f', -1, 64)
	}
	return ""
}

func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*exchange.OrderResponse, error) {
	var out *exchange.OrderResponse
	err := c.guard("order", func() error {
		svc := c.api.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(binance.SideType(req.Side)).
			Type(binance.OrderType(req.Type)).
			Quantity(req.Quantity)
		if req.Type == types.OrderTypeLimit {
			svc = svc.Price(req.Price)
			tif := binance.TimeInForceTypeGTC
			if req.TimeInForce != "" {
				tif = binance.TimeInForceType(req.TimeInForce)
			}
			svc = svc.TimeInForce(tif)
		}
		if req.ClientOrderID != "" {
			svc = svc.NewClientOrderID(req.ClientOrderID)
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		out = &exchange.OrderResponse{
			OrderID:       strconv.FormatInt(res.OrderID, 10),
			ClientOrderID: res.ClientOrderID,
			Symbol:        res.Symbol,
			Status:        string(res.Status),
			ExecutedQty:   convert.ParseFloat(res.ExecutedQuantity),
			ExecutedQuote: convert.ParseFloat(res.CummulativeQuoteQuantity),
			Price:         convert.ParseFloat(res.Price),
			TransactTime:  res.TransactTime,
		}
		return nil
	})
	return out, err
}

func (c *Client) GetOrderStatus(ctx context.Context, sym, orderID string) (*exchange.OrderResponse, error) {
	id, parseErr := strconv.ParseInt(orderID, 10, 64)
	var out *exchange.OrderResponse
	err := c.guard("orderStatus", func() error {
		svc := c.api.NewGetOrderService().Symbol(sym)
		if parseErr == nil {
			svc = svc.OrderID(id)
		} else {
			// Some placements only return the client order id.
			svc = svc.OrigClientOrderID(orderID)
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		out = &exchange.OrderResponse{
			OrderID:       strconv.FormatInt(res.OrderID, 10),
			ClientOrderID: res.ClientOrderID,
			Symbol:        res.Symbol,
			Status:        string(res.Status),
			ExecutedQty:   convert.ParseFloat(res.ExecutedQuantity),
			ExecutedQuote: convert.ParseFloat(res.CummulativeQuoteQuantity),
			Price:         convert.ParseFloat(res.Price),
		}
		return nil
	})
	return out, err
}

func (c *Client) GetAccountBalance(ctx context.Context) (map[string]float64, error) {
	var out map[string]float64
	err := c.guard("account", func() error {
		acct, err := c.api.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		out = make(map[string]float64, len(acct.Balances))
		for _, b := range acct.Balances {
			free := convert.ParseFloat(b.Free)
			if free > 0 {
				out[b.Asset] = free
			}
		}
		return nil
	})
	return out, err
}

func (c *Client) Ping(ctx context.Context) error {
	return c.guard("ping", func() error {
		return c.api.NewPingService().Do(ctx)
	})
}

// LastStreamPrice satisfies exchange.StreamPriceSource.
func (c *Client) LastStreamPrice(symbol string) float64 {
	return c.stream.Last(symbol)
}

// BreakerState exposes the REST breaker state for the status endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.CurrentState().String()
}

// StartStream connects the websocket price feed for the given symbols and
// keeps it alive until ctx is cancelled.
func (c *Client) StartStream(ctx context.Context, symbols []string) {
	if err := c.stream.Run(ctx, symbols); err != nil && ctx.Err() == nil {
		logger.Errorf("mexc: price stream stopped: %v", err)
	}
}
