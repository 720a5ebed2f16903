package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/gateway/exchange"
	"sniper/internal/store/gormstore"
	"sniper/internal/types"
)

type fakeOrders struct {
	exchange.Client
	orders map[string]*exchange.OrderResponse
	calls  int
}

func (f *fakeOrders) GetOrderStatus(ctx context.Context, symbol, orderID string) (*exchange.OrderResponse, error) {
	f.calls++
	if r, ok := f.orders[orderID]; ok {
		return r, nil
	}
	return nil, errors.New("order does not exist")
}

func newStore(t *testing.T) *gormstore.Store {
	t.Helper()
	db, err := gormstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func pendingRecord(id, orderID string) *types.ExecutionRecord {
	return &types.ExecutionRecord{
		ID: id, TargetID: "t-" + id, Symbol: "NEWUSDT", Side: types.SideBuy,
		Outcome: types.OutcomeSuccess, OrderID: orderID,
		ExchangeStatus: "NEW", RequestedPrice: 2.0, CreatedAt: time.Now(),
	}
}

// pendingPosition is the zero-quantity placeholder an ambiguous placement
// leaves behind, valued at the resolved price of 2.0.
func pendingPosition(id, targetID string) *types.Position {
	return &types.Position{
		ID: id, TargetID: targetID, Symbol: "NEWUSDT",
		EntryPrice: 2.0, Quantity: 0,
		StopLossPrice:   1.9,
		TakeProfitPrice: 2.2,
		MaxHoldUntil:    time.Now().Add(time.Hour),
		Status:          types.PositionStatusOpen,
	}
}

func TestSweepCompletesSettledOrders(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	require.NoError(t, db.Executions().Insert(ctx, pendingRecord("e1", "o1")))

	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o1": {OrderID: "o1", Status: "FILLED", ExecutedQty: 10, ExecutedQuote: 20},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := db.Executions().ListByTarget(ctx, "t-e1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "FILLED", recs[0].ExchangeStatus)
	assert.InDelta(t, 10.0, recs[0].ExecutedQty, 1e-9)
	assert.InDelta(t, 2.0, recs[0].ExecutedPrice, 1e-9)

	// Settled records leave the sweep's view.
	pending, err := db.Executions().ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepLeavesInFlightOrders(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	require.NoError(t, db.Executions().Insert(ctx, pendingRecord("e1", "o1")))

	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o1": {OrderID: "o1", Status: "NEW"},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := db.Executions().ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSweepSkipsUnknownOrdersAndContinues(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	require.NoError(t, db.Executions().Insert(ctx, pendingRecord("e1", "gone")))
	require.NoError(t, db.Executions().Insert(ctx, pendingRecord("e2", "o2")))

	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o2": {OrderID: "o2", Status: "FILLED", ExecutedQty: 5, ExecutedQuote: 5},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, client.calls)
}

func TestSweepAppliesLateFillToPosition(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	rec := pendingRecord("e1", "o1")
	rec.PositionID = "p1"
	require.NoError(t, db.Executions().Insert(ctx, rec))
	require.NoError(t, db.Positions().Insert(ctx, pendingPosition("p1", "t-e1")))
	require.NoError(t, db.Targets().Insert(ctx, &types.Target{
		ID: "t-e1", Symbol: "NEWUSDT", Status: types.TargetStatusCompleted,
	}))

	// Filled at 2.1 after the ambiguity window.
	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o1": {OrderID: "o1", Status: "FILLED", ExecutedQty: 10, ExecutedQuote: 21},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pos, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 2.1, pos.EntryPrice, 1e-9)
	// Stop and take-profit rescale from the placement valuation of 2.0.
	assert.InDelta(t, 1.9*2.1/2.0, pos.StopLossPrice, 1e-9)
	assert.InDelta(t, 2.2*2.1/2.0, pos.TakeProfitPrice, 1e-9)

	// The position is now visible to the exit monitor.
	open, err := db.Positions().ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "p1", open[0].ID)

	tgt, err := db.Targets().Get(ctx, "t-e1")
	require.NoError(t, err)
	assert.InDelta(t, 2.1, tgt.ExecutedPrice, 1e-9)
	assert.InDelta(t, 10.0, tgt.ExecutedQty, 1e-9)
}

func TestSweepFailsPlacementSettledUnfilled(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	rec := pendingRecord("e1", "o1")
	rec.PositionID = "p1"
	require.NoError(t, db.Executions().Insert(ctx, rec))
	require.NoError(t, db.Positions().Insert(ctx, pendingPosition("p1", "t-e1")))
	require.NoError(t, db.Targets().Insert(ctx, &types.Target{
		ID: "t-e1", Symbol: "NEWUSDT", Status: types.TargetStatusCompleted,
	}))

	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o1": {OrderID: "o1", Status: "EXPIRED"},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pos, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, pos.Status)
	assert.Equal(t, "unfilled", pos.ExitReason)

	tgt, err := db.Targets().Get(ctx, "t-e1")
	require.NoError(t, err)
	assert.Equal(t, types.TargetStatusFailed, tgt.Status)
	assert.Contains(t, tgt.ErrorMessage, "without fill")
}

func TestSweepLeavesFilledPositionsAlone(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	// A partially filled multi-child placement: the position quantity was
	// accounted at placement time and must not be overwritten by the
	// first child's order status.
	rec := pendingRecord("e1", "o1")
	rec.PositionID = "p1"
	rec.ExchangeStatus = "PARTIALLY_FILLED"
	rec.ExecutedQty = 30
	require.NoError(t, db.Executions().Insert(ctx, rec))
	pos := pendingPosition("p1", "t-e1")
	pos.Quantity = 30
	require.NoError(t, db.Positions().Insert(ctx, pos))

	client := &fakeOrders{orders: map[string]*exchange.OrderResponse{
		"o1": {OrderID: "o1", Status: "FILLED", ExecutedQty: 10, ExecutedQuote: 20},
	}}
	s := New(client, db.Stores(), "@every 1m")

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, got.Quantity, 1e-9)
}
