// Package executor runs the order execution pipeline: idempotency guard,
// target claim, price resolution, normalization and budget splitting,
// submission with classified retries, reconciliation of ambiguous
// placements, and position creation.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sniper/internal/config"
	"sniper/internal/engine/norm"
	"sniper/internal/engine/price"
	"sniper/internal/gateway/exchange"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/pkg/symbol"
	"sniper/internal/store"
	"sniper/internal/types"
)

// Disposition tells the scheduler what happened to a target so it can
// decide between completing, deferring and failing it.
type Disposition int

const (
	// DispositionCompleted means the buy succeeded (or had already
	// succeeded) and the target is completed.
	DispositionCompleted Disposition = iota
	// DispositionDeferred means no price could be resolved; the target
	// stays eligible and is retried on a later tick without consuming a
	// retry attempt.
	DispositionDeferred
	// DispositionSkipped means another worker claimed the target first.
	DispositionSkipped
	// DispositionRetry means the exchange rejected the order transiently;
	// the retry counter was bumped and the target returned to ready.
	DispositionRetry
	// DispositionFailed means a non-retryable rejection; the target is
	// terminally failed.
	DispositionFailed
)

// Executor is the order execution pipeline.
type Executor struct {
	client    exchange.Client
	resolver  *price.Resolver
	targets   store.TargetStore
	positions store.PositionStore
	execs     store.ExecutionStore
	events    store.EventStore
	prefs     store.PreferenceStore
	profiles  *config.ProfileRegistry
	metrics   *metrics.Metrics

	engineCfg config.EngineConfig
	riskCfg   config.RiskConfig

	// Injection points for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New wires the pipeline. profiles and m may be nil (no tier file, no
// metrics); everything else is required.
func New(
	client exchange.Client,
	resolver *price.Resolver,
	st *store.Stores,
	profiles *config.ProfileRegistry,
	m *metrics.Metrics,
	engineCfg config.EngineConfig,
	riskCfg config.RiskConfig,
) *Executor {
	return &Executor{
		client:    client,
		resolver:  resolver,
		targets:   st.Targets,
		positions: st.Positions,
		execs:     st.Executions,
		events:    st.Events,
		prefs:     st.Preferences,
		profiles:  profiles,
		metrics:   m,
		engineCfg: engineCfg,
		riskCfg:   riskCfg,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// ExecuteBuy drives one target through the buy pipeline. It owns all
// target status transitions past the claim; callers only interpret the
// returned disposition.
func (e *Executor) ExecuteBuy(ctx context.Context, t *types.Target) (Disposition, error) {
	// Idempotency guard: a prior successful buy means the order already
	// went out, no matter what the target row says.
	prior, err := e.execs.FindSuccessfulBuy(ctx, t.ID)
	if err != nil {
		return DispositionSkipped, fmt.Errorf("idempotency check: %w", err)
	}
	if prior != nil {
		logger.Warnf("target %s already bought (order %s), completing without new orders", t.ID, prior.OrderID)
		if !t.Terminal() {
			if err := e.targets.Complete(ctx, t.ID, prior.ExecutedPrice, prior.ExecutedQty); err != nil {
				return DispositionCompleted, err
			}
		}
		return DispositionCompleted, nil
	}

	sym := symbol.Normalize(t.Symbol)
	if !symbol.Valid(sym) {
		msg := fmt.Sprintf("invalid symbol %q", t.Symbol)
		logger.Errorf("target %s failed: %s", t.ID, msg)
		if err := e.targets.SetStatus(ctx, t.ID, types.TargetStatusFailed, msg); err != nil {
			return DispositionFailed, err
		}
		return DispositionFailed, nil
	}
	t.Symbol = sym

	entryPrice, err := e.resolver.Resolve(ctx, t.Symbol)
	if err != nil {
		if price.Unavailable(err) {
			logger.Infof("deferring target %s: no price for %s", t.ID, t.Symbol)
			e.appendEvent(ctx, t.ID, t.Symbol, types.EventBuyDeferred, map[string]any{
				"reason": "price_unavailable",
			})
			return DispositionDeferred, nil
		}
		return DispositionDeferred, err
	}

	claimed, err := e.targets.Claim(ctx, t.ID, t.Status, types.TargetStatusExecuting)
	if err != nil {
		return DispositionSkipped, fmt.Errorf("claim target %s: %w", t.ID, err)
	}
	if !claimed {
		logger.Debugf("target %s claimed by another worker, skipping", t.ID)
		return DispositionSkipped, nil
	}

	started := e.now()
	result, execErr := e.placeBudget(ctx, t, entryPrice)
	latency := e.now().Sub(started)

	if execErr != nil {
		return e.failBuy(ctx, t, entryPrice, latency, execErr)
	}

	rec := &types.ExecutionRecord{
		ID:             uuid.NewString(),
		TargetID:       t.ID,
		UserID:         t.UserID,
		Symbol:         t.Symbol,
		Side:           types.SideBuy,
		RequestedPrice: entryPrice,
		ExecutedQty:    result.ExecutedQty,
		ExecutedPrice:  result.AvgPrice,
		TotalCost:      result.ExecutedQuote,
		OrderID:        result.OrderID,
		ExchangeStatus: result.ExchangeStatus,
		ChildOrders:    result.ChildOrders,
		LatencyMs:      latency.Milliseconds(),
		Outcome:        types.OutcomeSuccess,
		CreatedAt:      e.now(),
	}

	pos := e.buildPosition(ctx, t, result)
	rec.PositionID = pos.ID

	if err := e.execs.Insert(ctx, rec); err != nil {
		// The order is out; losing the audit row must not lose the
		// position or re-trigger the buy.
		logger.Errorf("persist execution record for target %s: %v", t.ID, err)
	}
	if err := e.positions.Insert(ctx, pos); err != nil {
		return DispositionCompleted, fmt.Errorf("persist position for target %s: %w", t.ID, err)
	}
	if err := e.targets.Complete(ctx, t.ID, result.AvgPrice, result.ExecutedQty); err != nil {
		return DispositionCompleted, fmt.Errorf("complete target %s: %w", t.ID, err)
	}

	if e.metrics != nil {
		e.metrics.OrderLatency.WithLabelValues(string(types.SideBuy)).Observe(latency.Seconds())
		e.metrics.ActivePositions.Inc()
	}
	e.appendEvent(ctx, t.ID, t.Symbol, types.EventBuyExecuted, map[string]any{
		"price":        result.AvgPrice,
		"quantity":     result.ExecutedQty,
		"child_orders": result.ChildOrders,
		"pending":      result.Pending,
		"latency_ms":   latency.Milliseconds(),
	})
	logger.Infof("bought %s qty=%v avg=%v children=%d latency=%s",
		t.Symbol, result.ExecutedQty, result.AvgPrice, result.ChildOrders, latency)
	return DispositionCompleted, nil
}

// failBuy records a failed attempt and routes the target to failed or
// back to ready depending on whether the rejection was fatal.
func (e *Executor) failBuy(ctx context.Context, t *types.Target, entryPrice float64, latency time.Duration, execErr error) (Disposition, error) {
	rec := &types.ExecutionRecord{
		ID:             uuid.NewString(),
		TargetID:       t.ID,
		UserID:         t.UserID,
		Symbol:         t.Symbol,
		Side:           types.SideBuy,
		RequestedPrice: entryPrice,
		LatencyMs:      latency.Milliseconds(),
		Outcome:        types.OutcomeFailed,
		ErrorMessage:   execErr.Error(),
		CreatedAt:      e.now(),
	}
	if err := e.execs.Insert(ctx, rec); err != nil {
		logger.Errorf("persist failed execution for target %s: %v", t.ID, err)
	}
	e.appendEvent(ctx, t.ID, t.Symbol, types.EventBuyFailed, map[string]any{
		"error": execErr.Error(),
	})

	if exchange.Fatal(execErr) {
		logger.Errorf("target %s failed permanently: %v", t.ID, execErr)
		if err := e.targets.SetStatus(ctx, t.ID, types.TargetStatusFailed, execErr.Error()); err != nil {
			return DispositionFailed, err
		}
		return DispositionFailed, nil
	}

	logger.Warnf("target %s rejected transiently, requeueing: %v", t.ID, execErr)
	if err := e.targets.IncrementRetry(ctx, t.ID); err != nil {
		return DispositionRetry, err
	}
	if err := e.targets.SetStatus(ctx, t.ID, types.TargetStatusReady, execErr.Error()); err != nil {
		return DispositionRetry, err
	}
	return DispositionRetry, nil
}

// placeBudget normalizes the budget into child orders and submits them,
// aggregating the fills.
func (e *Executor) placeBudget(ctx context.Context, t *types.Target, entryPrice float64) (*types.OrderResult, error) {
	rules, err := e.client.GetSymbolRules(ctx, t.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol rules for %s: %w", t.Symbol, err)
	}
	if !rules.TradingEnabled {
		return nil, fmt.Errorf("trading disabled for %s", t.Symbol)
	}

	budget := e.resolveBudget(ctx, t)
	plan, err := norm.BuildPlan(budget, entryPrice, rules)
	if err != nil {
		return nil, fmt.Errorf("normalize budget %v for %s: %w", budget, t.Symbol, err)
	}
	if plan.Abandoned.Sign() > 0 {
		logger.Infof("abandoning %s quote of %s budget below minimum notional", plan.Abandoned, t.Symbol)
	}

	agg := &types.OrderResult{ChildOrders: len(plan.Slices)}
	for i, slice := range plan.Slices {
		req := types.OrderRequest{
			Symbol:        t.Symbol,
			Side:          types.SideBuy,
			Type:          types.OrderTypeLimit,
			Quantity:      norm.FormatQuantity(slice.Quantity, rules.StepSize),
			Price:         norm.AdjustPrice(entryPrice, rules.TickSize),
			TimeInForce:   "IOC",
			QuantityF:     slice.Quantity.InexactFloat64(),
			PriceF:        entryPrice,
			ClientOrderID: clientOrderID(t.ID, i),
		}
		resp, err := e.submit(ctx, req)
		if err != nil {
			if agg.ExecutedQty > 0 {
				// Partial success across children: keep what filled and
				// surface the remainder's error.
				logger.Errorf("child order %d/%d for %s failed after fills: %v",
					i+1, len(plan.Slices), t.Symbol, err)
				agg.ChildOrders = i
				break
			}
			return nil, err
		}
		mergeResponse(agg, resp, entryPrice)
	}

	if agg.ExecutedQty > 0 {
		agg.AvgPrice = agg.ExecutedQuote / agg.ExecutedQty
	} else {
		// Placed but unconfirmed: value at the resolved price until the
		// reconciliation sweep reports the real fill.
		agg.AvgPrice = entryPrice
		agg.Pending = true
	}
	return agg, nil
}

// submit places one order with classified retries: fatal rejections abort
// immediately, price-limit rejections are retried once as a market order,
// and transient failures back off deterministically.
func (e *Executor) submit(ctx context.Context, req types.OrderRequest) (*exchange.OrderResponse, error) {
	var lastErr error
	for attempt := 0; attempt < e.engineCfg.OrderRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		resp, err := e.client.PlaceOrder(ctx, req)
		if err == nil {
			settled, cerr := e.confirm(ctx, req, resp)
			if cerr != nil {
				return nil, cerr
			}
			if settled.Rejected() {
				return nil, fmt.Errorf("order %s for %s: %w", settled.OrderID, req.Symbol, exchange.ErrOrderRejected)
			}
			if settled.Unfilled() {
				// An IOC order that found no liquidity. Re-place it; a
				// fresh book on a new listing may fill the next attempt.
				lastErr = fmt.Errorf("order %s for %s settled %s with no fill", settled.OrderID, req.Symbol, settled.Status)
				logger.Warnf("order attempt %d/%d for %s: %v",
					attempt+1, e.engineCfg.OrderRetries, req.Symbol, lastErr)
				continue
			}
			return settled, nil
		}
		if exchange.PriceLimit(err) && req.Type == types.OrderTypeLimit {
			logger.Warnf("limit price rejected for %s, retrying as market: %v", req.Symbol, err)
			req.Type = types.OrderTypeMarket
			req.Price = ""
			req.TimeInForce = ""
			continue
		}
		if exchange.Fatal(err) {
			return nil, err
		}
		lastErr = err
		logger.Warnf("order attempt %d/%d for %s failed: %v",
			attempt+1, e.engineCfg.OrderRetries, req.Symbol, err)
	}
	return nil, fmt.Errorf("order for %s failed after %d attempts: %w",
		req.Symbol, e.engineCfg.OrderRetries, lastErr)
}

// confirm resolves an ambiguous placement response by querying the order
// status. An order the exchange cannot find with zero reported quantity is
// treated as placed: the reconciliation sweep revisits it.
func (e *Executor) confirm(ctx context.Context, req types.OrderRequest, resp *exchange.OrderResponse) (*exchange.OrderResponse, error) {
	if resp.Definitive() {
		return resp, nil
	}
	for i := 0; i < e.engineCfg.PendingRechecks; i++ {
		if err := e.sleep(ctx, e.engineCfg.BackoffBase); err != nil {
			return nil, err
		}
		status, err := e.client.GetOrderStatus(ctx, req.Symbol, orderRef(resp, req))
		if err != nil {
			if notFound(err) {
				break
			}
			logger.Warnf("order status recheck %d for %s: %v", i+1, req.Symbol, err)
			continue
		}
		if status.Definitive() {
			return status, nil
		}
	}
	logger.Warnf("order %s for %s still ambiguous, treating as placed", resp.OrderID, req.Symbol)
	return resp, nil
}

func (e *Executor) resolveBudget(ctx context.Context, t *types.Target) float64 {
	if t.PositionSize > 0 {
		return t.PositionSize
	}
	if p := e.loadPrefs(ctx, t.UserID); p != nil && p.DefaultBuyAmount > 0 {
		return p.DefaultBuyAmount
	}
	return e.riskCfg.DefaultBuyAmount
}

// resolveRisk layers risk parameters: target overrides beat user
// preferences, which beat the user's tier profile, which beats config
// defaults.
func (e *Executor) resolveRisk(ctx context.Context, t *types.Target) types.RiskParams {
	params := types.RiskParams{
		StopLossPct:    e.riskCfg.StopLossPct,
		TakeProfitPct:  e.riskCfg.TakeProfitPct,
		MaxHoldMinutes: e.riskCfg.MaxHoldMinutes,
	}
	if p := e.loadPrefs(ctx, t.UserID); p != nil {
		if e.profiles != nil && p.TakeProfitTier != "" {
			if tier, ok := e.profiles.Tier(p.TakeProfitTier); ok {
				if tier.TakeProfitPct > 0 {
					params.TakeProfitPct = tier.TakeProfitPct
				}
				if tier.StopLossPct > 0 {
					params.StopLossPct = tier.StopLossPct
				}
				if tier.MaxHoldMinutes > 0 {
					params.MaxHoldMinutes = tier.MaxHoldMinutes
				}
			}
		}
		if p.StopLossPct > 0 {
			params.StopLossPct = p.StopLossPct
		}
		if p.TakeProfitTier == "" && p.TakeProfitPct > 0 {
			params.TakeProfitPct = p.TakeProfitPct
		}
		if p.MaxHoldMinutes > 0 {
			params.MaxHoldMinutes = p.MaxHoldMinutes
		}
	}
	if t.StopLossPct > 0 {
		params.StopLossPct = t.StopLossPct
	}
	if t.TakeProfitPct > 0 {
		params.TakeProfitPct = t.TakeProfitPct
	}
	if t.MaxHoldMinutes > 0 {
		params.MaxHoldMinutes = t.MaxHoldMinutes
	}
	return params
}

func (e *Executor) buildPosition(ctx context.Context, t *types.Target, result *types.OrderResult) *types.Position {
	risk := e.resolveRisk(ctx, t)
	entry := result.AvgPrice
	now := e.now()
	return &types.Position{
		ID:              uuid.NewString(),
		TargetID:        t.ID,
		UserID:          t.UserID,
		Symbol:          t.Symbol,
		EntryPrice:      entry,
		Quantity:        result.ExecutedQty,
		StopLossPrice:   entry * (1 - risk.StopLossPct/100),
		TakeProfitPrice: entry * (1 + risk.TakeProfitPct/100),
		MaxHoldUntil:    now.Add(time.Duration(risk.MaxHoldMinutes) * time.Minute),
		Status:          types.PositionStatusOpen,
		OpenedAt:        now,
		UpdatedAt:       now,
	}
}

func (e *Executor) loadPrefs(ctx context.Context, userID string) *types.RiskPreferences {
	if userID == "" || e.prefs == nil {
		return nil
	}
	p, err := e.prefs.GetRiskPreferences(ctx, userID)
	if err != nil {
		logger.Warnf("load risk preferences for %s: %v", userID, err)
		return nil
	}
	return p
}

// backoff returns the deterministic delay before retry attempt n (1-based).
func (e *Executor) backoff(attempt int) time.Duration {
	d := float64(e.engineCfg.BackoffBase)
	for i := 1; i < attempt; i++ {
		d *= e.engineCfg.BackoffMultiplier
	}
	if max := float64(e.engineCfg.BackoffMax); d > max {
		d = max
	}
	return time.Duration(d)
}

func (e *Executor) appendEvent(ctx context.Context, targetID, symbol, kind string, details map[string]any) {
	if e.events == nil {
		return
	}
	ev := &types.EngineEvent{
		TargetID: targetID,
		Symbol:   symbol,
		Kind:     kind,
		Details:  details,
		At:       e.now(),
	}
	if err := e.events.AppendEvent(ctx, ev); err != nil {
		logger.Warnf("append %s event for %s: %v", kind, targetID, err)
	}
}

func mergeResponse(agg *types.OrderResult, resp *exchange.OrderResponse, fallbackPrice float64) {
	if agg.OrderID == "" {
		agg.OrderID = resp.OrderID
		agg.ClientOrderID = resp.ClientOrderID
	}
	agg.ExchangeStatus = resp.Status
	agg.ExecutedQty += resp.ExecutedQty
	if resp.ExecutedQuote > 0 {
		agg.ExecutedQuote += resp.ExecutedQuote
	} else if resp.ExecutedQty > 0 {
		p := resp.Price
		if p <= 0 {
			p = fallbackPrice
		}
		agg.ExecutedQuote += resp.ExecutedQty * p
	}
}

// clientOrderID is deterministic per target and child so a retried
// placement deduplicates on the exchange instead of doubling the order.
func clientOrderID(targetID string, child int) string {
	id := strings.ReplaceAll(targetID, "-", "")
	if len(id) > 16 {
		id = id[:16]
	}
	return fmt.Sprintf("snp-%s-%d", id, child)
}

func orderRef(resp *exchange.OrderResponse, req types.OrderRequest) string {
	if resp != nil && resp.OrderID != "" {
		return resp.OrderID
	}
	return req.ClientOrderID
}

func notFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
