package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTarget(t *testing.T, s *Store, id string, status types.TargetStatus) {
	t.Helper()
	err := s.Targets().Insert(context.Background(), &types.Target{
		ID:           id,
		Symbol:       "VFARMUSDT",
		PositionSize: 100,
		Confidence:   90,
		Status:       status,
	})
	require.NoError(t, err)
}

func TestTargetClaimExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTarget(t, s, "t1", types.TargetStatusReady)

	ok, err := s.Targets().Claim(ctx, "t1", types.TargetStatusReady, types.TargetStatusExecuting)
	require.NoError(t, err)
	assert.True(t, ok)

	// A racing worker observes zero rows affected.
	ok, err = s.Targets().Claim(ctx, "t1", types.TargetStatusReady, types.TargetStatusExecuting)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Targets().Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.TargetStatusExecuting, got.Status)
}

func TestListDueFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedTarget(t, s, "ready", types.TargetStatusReady)
	seedTarget(t, s, "done", types.TargetStatusCompleted)

	require.NoError(t, s.Targets().Insert(ctx, &types.Target{
		ID: "active-due", Symbol: "AAAUSDT", Status: types.TargetStatusActive,
		ExecuteAt: now.Add(-time.Minute),
	}))
	require.NoError(t, s.Targets().Insert(ctx, &types.Target{
		ID: "active-future", Symbol: "BBBUSDT", Status: types.TargetStatusActive,
		ExecuteAt: now.Add(time.Hour),
	}))
	require.NoError(t, s.Targets().Insert(ctx, &types.Target{
		ID: "exhausted", Symbol: "CCCUSDT", Status: types.TargetStatusReady,
		RetryCount: 3,
	}))
	require.NoError(t, s.Targets().Insert(ctx, &types.Target{
		ID: "other-user", UserID: "someone-else", Symbol: "DDDUSDT",
		Status: types.TargetStatusReady,
	}))

	due, err := s.Targets().ListDue(ctx, "operator", 3, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"ready", "active-due"}, ids)
}

func TestPositionClaimAndRevert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pos := &types.Position{
		ID: "p1", TargetID: "t1", Symbol: "VFARMUSDT",
		EntryPrice: 100, Quantity: 5, Status: types.PositionStatusOpen,
	}
	require.NoError(t, s.Positions().Insert(ctx, pos))

	ok, err := s.Positions().Claim(ctx, "p1", types.PositionStatusOpen, types.PositionStatusPartial)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Positions().Claim(ctx, "p1", types.PositionStatusOpen, types.PositionStatusPartial)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must observe a no-op")

	require.NoError(t, s.Positions().Revert(ctx, "p1"))
	got, err := s.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
	assert.Nil(t, got.ClaimedAt)
}

func TestRevertStaleClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Positions().Insert(ctx, &types.Position{
		ID: "p1", Symbol: "VFARMUSDT", EntryPrice: 1, Quantity: 1,
		Status: types.PositionStatusOpen,
	}))
	ok, err := s.Positions().Claim(ctx, "p1", types.PositionStatusOpen, types.PositionStatusPartial)
	require.NoError(t, err)
	require.True(t, ok)

	// Claim is fresh: nothing to revert.
	n, err := s.Positions().RevertStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// With a zero max age every claim is stale.
	time.Sleep(5 * time.Millisecond)
	n, err = s.Positions().RevertStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, types.PositionStatusOpen, got.Status)
}

func TestFindSuccessfulBuy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Executions().FindSuccessfulBuy(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "e1", TargetID: "t1", Symbol: "VFARMUSDT", Side: types.SideBuy,
		ExecutedQty: 5, ExecutedPrice: 20, TotalCost: 100,
		Outcome: types.OutcomeFailed,
	}))
	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "e2", TargetID: "t1", Symbol: "VFARMUSDT", Side: types.SideBuy,
		ExecutedQty: 5, ExecutedPrice: 20, TotalCost: 100,
		OrderID: "42", ExchangeStatus: "FILLED", Outcome: types.OutcomeSuccess,
	}))
	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "e3", TargetID: "t1", Symbol: "VFARMUSDT", Side: types.SideSell,
		ExecutedQty: 5, Outcome: types.OutcomeSuccess,
	}))

	rec, err = s.Executions().FindSuccessfulBuy(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "e2", rec.ID)
	assert.Equal(t, types.SideBuy, rec.Side)
}

func TestListUnreconciled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "filled", TargetID: "t1", Side: types.SideBuy, OrderID: "1",
		ExchangeStatus: "FILLED", ExecutedQty: 5, Outcome: types.OutcomeSuccess,
	}))
	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "zero-qty", TargetID: "t2", Side: types.SideBuy, OrderID: "2",
		ExchangeStatus: "NEW", ExecutedQty: 0, Outcome: types.OutcomeSuccess,
	}))
	require.NoError(t, s.Executions().Insert(ctx, &types.ExecutionRecord{
		ID: "no-order-id", TargetID: "t3", Side: types.SideBuy,
		ExchangeStatus: "", ExecutedQty: 0, Outcome: types.OutcomeSuccess,
	}))

	recs, err := s.Executions().ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "zero-qty", recs[0].ID)

	require.NoError(t, s.Executions().ApplyReconciliation(ctx, "zero-qty", "FILLED", 10, 100, 10))
	recs, err = s.Executions().ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
