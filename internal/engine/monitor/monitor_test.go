package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/config"
	"sniper/internal/engine/price"
	"sniper/internal/store/gormstore"
	"sniper/internal/types"
)

type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) Resolve(ctx context.Context, symbol string) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, price.ErrUnavailable
	}
	return p, nil
}

type fakeSeller struct {
	err   error
	fill  float64
	sold  []string
	price float64
}

func (f *fakeSeller) SellPosition(ctx context.Context, pos *types.Position) (*types.OrderResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sold = append(f.sold, pos.ID)
	return &types.OrderResult{
		ExecutedQty:   f.fill,
		ExecutedQuote: f.fill * f.price,
		AvgPrice:      f.price,
	}, nil
}

func newMonitor(t *testing.T, prices *fakePrices, seller *fakeSeller) (*Monitor, *gormstore.Store) {
	t.Helper()
	db, err := gormstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.EngineConfig{
		MonitorInterval:     time.Second,
		PartialClaimTimeout: 2 * time.Minute,
	}
	return New(db.Positions(), db.Targets(), db.Events(), prices, seller, nil, cfg), db
}

// entry 100, stop loss 5%, take profit 10%, one hour hold.
func position(id string) *types.Position {
	return &types.Position{
		ID: id, TargetID: "t-" + id, Symbol: "NEWUSDT",
		EntryPrice: 100, Quantity: 1,
		StopLossPrice:   95,
		TakeProfitPrice: 110,
		MaxHoldUntil:    time.Now().Add(time.Hour),
		Status:          types.PositionStatusOpen,
		OpenedAt:        time.Now(),
	}
}

func TestStopLossTriggers(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 94}}
	seller := &fakeSeller{fill: 1, price: 94}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	assert.Equal(t, []string{"p1"}, seller.sold)
	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, got.Status)
	assert.Equal(t, types.ExitReasonStopLoss, got.ExitReason)
	assert.InDelta(t, -6.0, got.RealizedPnL, 1e-9)
	assert.InDelta(t, -6.0, got.RealizedPnLPct, 1e-9)
}

func TestTakeProfitTriggers(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 111}}
	seller := &fakeSeller{fill: 1, price: 111}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, got.Status)
	assert.Equal(t, types.ExitReasonTakeProfit, got.ExitReason)
	assert.InDelta(t, 11.0, got.RealizedPnL, 1e-9)
}

func TestNoTriggerInsideBand(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 102}}
	seller := &fakeSeller{fill: 1, price: 102}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	assert.Empty(t, seller.sold)
	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
}

func TestMaxHoldTriggersEvenWithoutPrice(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{}}
	seller := &fakeSeller{fill: 1, price: 90}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()

	pos := position("p1")
	pos.MaxHoldUntil = time.Now().Add(-time.Minute)
	require.NoError(t, db.Positions().Insert(ctx, pos))

	m.Tick(ctx)

	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, got.Status)
	assert.Equal(t, types.ExitReasonMaxHold, got.ExitReason)
}

func TestUnavailablePriceSkipsSilently(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{}}
	seller := &fakeSeller{fill: 1, price: 100}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	assert.Empty(t, seller.sold)
	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
}

func TestFailedSellRevertsClaim(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 94}}
	seller := &fakeSeller{err: errors.New("exchange down")}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestClaimConflictSkipsSell(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 94}}
	seller := &fakeSeller{fill: 1, price: 94}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()

	pos := position("p1")
	require.NoError(t, db.Positions().Insert(ctx, pos))
	// Another monitor holds the claim.
	claimed, err := db.Positions().Claim(ctx, "p1", types.PositionStatusOpen, types.PositionStatusPartial)
	require.NoError(t, err)
	require.True(t, claimed)

	err = m.close(ctx, pos, 94, types.ExitReasonStopLoss)
	require.NoError(t, err)
	assert.Empty(t, seller.sold)
}

func TestClosePositionManual(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 102}}
	seller := &fakeSeller{fill: 1, price: 102}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	require.NoError(t, m.ClosePosition(ctx, "p1"))

	got, err := db.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusClosed, got.Status)
	assert.Equal(t, types.ExitReasonManual, got.ExitReason)

	assert.Error(t, m.ClosePosition(ctx, "p1"))
	assert.Error(t, m.ClosePosition(ctx, "missing"))
}

func TestCloseAllPositions(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 102}}
	seller := &fakeSeller{fill: 1, price: 102}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))
	require.NoError(t, db.Positions().Insert(ctx, position("p2")))

	closed, err := m.CloseAllPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	open, err := db.Positions().ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCloseFinalizesLingeringTarget(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{"NEWUSDT": 111}}
	seller := &fakeSeller{fill: 1, price: 111}
	m, db := newMonitor(t, prices, seller)
	ctx := context.Background()

	// A crash between buy and completion leaves the target executing.
	require.NoError(t, db.Targets().Insert(ctx, &types.Target{
		ID: "t-p1", Symbol: "NEWUSDT", Status: types.TargetStatusExecuting,
	}))
	require.NoError(t, db.Positions().Insert(ctx, position("p1")))

	m.Tick(ctx)

	tgt, err := db.Targets().Get(ctx, "t-p1")
	require.NoError(t, err)
	assert.Equal(t, types.TargetStatusCompleted, tgt.Status)
}

func TestOpenSymbolsDeduplicates(t *testing.T) {
	prices := &fakePrices{prices: map[string]float64{}}
	m, db := newMonitor(t, prices, &fakeSeller{})
	ctx := context.Background()

	p1 := position("p1")
	p2 := position("p2")
	p3 := position("p3")
	p3.Symbol = "OTHERUSDT"
	for _, p := range []*types.Position{p1, p2, p3} {
		require.NoError(t, db.Positions().Insert(ctx, p))
	}

	symbols, err := m.OpenSymbols(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"NEWUSDT", "OTHERUSDT"}, symbols)
}
