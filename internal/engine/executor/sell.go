package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sniper/internal/engine/norm"
	"sniper/internal/logger"
	"sniper/internal/types"
)

// SellPosition liquidates a position's full quantity at market. It is
// called by the exit monitor after it has claimed the position; the
// monitor owns the open/partial/closed transitions, this only places and
// audits the order.
func (e *Executor) SellPosition(ctx context.Context, pos *types.Position) (*types.OrderResult, error) {
	rules, err := e.client.GetSymbolRules(ctx, pos.Symbol)
	if err != nil {
		return nil, fmt.Errorf("symbol rules for %s: %w", pos.Symbol, err)
	}

	step, _ := decimal.NewFromString(rules.StepSize)
	qty := norm.FloorToStep(decimal.NewFromFloat(pos.Quantity), step)
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("position %s quantity %v rounds to zero at step %s",
			pos.ID, pos.Quantity, rules.StepSize)
	}

	req := types.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          types.SideSell,
		Type:          types.OrderTypeMarket,
		Quantity:      norm.FormatQuantity(qty, rules.StepSize),
		QuantityF:     qty.InexactFloat64(),
		ClientOrderID: clientOrderID(pos.ID, 0),
	}

	started := e.now()
	resp, execErr := e.submit(ctx, req)
	latency := e.now().Sub(started)

	rec := &types.ExecutionRecord{
		ID:           uuid.NewString(),
		TargetID:     pos.TargetID,
		PositionID:   pos.ID,
		UserID:       pos.UserID,
		Symbol:       pos.Symbol,
		Side:         types.SideSell,
		RequestedQty: req.QuantityF,
		LatencyMs:    latency.Milliseconds(),
		CreatedAt:    e.now(),
	}

	if execErr != nil {
		rec.Outcome = types.OutcomeFailed
		rec.ErrorMessage = execErr.Error()
		if err := e.execs.Insert(ctx, rec); err != nil {
			logger.Errorf("persist failed sell for position %s: %v", pos.ID, err)
		}
		return nil, execErr
	}

	result := &types.OrderResult{ChildOrders: 1}
	mergeResponse(result, resp, pos.EntryPrice)
	if result.ExecutedQty > 0 {
		result.AvgPrice = result.ExecutedQuote / result.ExecutedQty
	} else {
		result.Pending = true
	}

	rec.Outcome = types.OutcomeSuccess
	rec.ExecutedQty = result.ExecutedQty
	rec.ExecutedPrice = result.AvgPrice
	rec.TotalCost = result.ExecutedQuote
	rec.OrderID = result.OrderID
	rec.ExchangeStatus = result.ExchangeStatus
	if err := e.execs.Insert(ctx, rec); err != nil {
		logger.Errorf("persist sell for position %s: %v", pos.ID, err)
	}

	if e.metrics != nil {
		e.metrics.OrderLatency.WithLabelValues(string(types.SideSell)).Observe(latency.Seconds())
	}
	return result, nil
}
