package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sniper/internal/gateway/exchange"
	"sniper/internal/types"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.Ticker), args.Error(1)
}

func (m *mockClient) GetOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	args := m.Called(ctx, symbol, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.OrderBook), args.Error(1)
}

func (m *mockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockClient) GetSymbolRules(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.SymbolRules), args.Error(1)
}

func (m *mockClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (*exchange.OrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.OrderResponse), args.Error(1)
}

func (m *mockClient) GetOrderStatus(ctx context.Context, symbol, orderID string) (*exchange.OrderResponse, error) {
	args := m.Called(ctx, symbol, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.OrderResponse), args.Error(1)
}

func (m *mockClient) GetAccountBalance(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *mockClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type staticStream struct{ price float64 }

func (s staticStream) LastStreamPrice(string) float64 { return s.price }

func newTestResolver(client exchange.Client, stream exchange.StreamPriceSource) *Resolver {
	r := NewResolver(client, stream, 3, time.Millisecond, 5)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestResolveTickerShortCircuits(t *testing.T) {
	client := new(mockClient)
	client.On("GetTicker", mock.Anything, "VFARMUSDT").
		Return(&exchange.Ticker{Symbol: "VFARMUSDT", LastPrice: 1.23}, nil).Once()

	r := newTestResolver(client, staticStream{price: 9.99})
	p, err := r.Resolve(context.Background(), "VFARMUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.23, p)
	// No other source consulted.
	client.AssertNotCalled(t, "GetCurrentPrice", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "GetOrderBook", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveFallsBackToStream(t *testing.T) {
	client := new(mockClient)
	client.On("GetTicker", mock.Anything, "VFARMUSDT").
		Return(nil, errors.New("not listed yet"))

	r := newTestResolver(client, staticStream{price: 0.42})
	p, err := r.Resolve(context.Background(), "VFARMUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.42, p)
}

func TestResolveFallsThroughToBookMid(t *testing.T) {
	client := new(mockClient)
	client.On("GetTicker", mock.Anything, "VFARMUSDT").Return(nil, errors.New("down"))
	client.On("GetCurrentPrice", mock.Anything, "VFARMUSDT").Return(0.0, errors.New("down"))
	client.On("GetOrderBook", mock.Anything, "VFARMUSDT", 5).
		Return(&exchange.OrderBook{
			Bids: []exchange.Level{{Price: 10, Qty: 1}},
			Asks: []exchange.Level{{Price: 12, Qty: 1}},
		}, nil)

	r := newTestResolver(client, staticStream{})
	p, err := r.Resolve(context.Background(), "VFARMUSDT")
	require.NoError(t, err)
	assert.Equal(t, 11.0, p)
}

func TestResolveUnavailableAfterAllAttempts(t *testing.T) {
	client := new(mockClient)
	client.On("GetTicker", mock.Anything, "GONEUSDT").Return(nil, errors.New("down"))
	client.On("GetCurrentPrice", mock.Anything, "GONEUSDT").Return(0.0, errors.New("down"))
	client.On("GetOrderBook", mock.Anything, "GONEUSDT", 5).Return(nil, errors.New("down"))

	r := newTestResolver(client, staticStream{})
	_, err := r.Resolve(context.Background(), "GONEUSDT")
	require.Error(t, err)
	assert.True(t, Unavailable(err))
	// The chain was walked once per attempt.
	client.AssertNumberOfCalls(t, "GetTicker", 3)
}

func TestResolveIgnoresNonPositivePrices(t *testing.T) {
	client := new(mockClient)
	client.On("GetTicker", mock.Anything, "ZEROUSDT").
		Return(&exchange.Ticker{LastPrice: 0}, nil)
	client.On("GetCurrentPrice", mock.Anything, "ZEROUSDT").Return(3.5, nil)

	r := newTestResolver(client, staticStream{price: -1})
	p, err := r.Resolve(context.Background(), "ZEROUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3.5, p)
}
