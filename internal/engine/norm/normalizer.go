// Package norm adjusts requested quantities and prices to the exchange's
// step-size, tick-size and notional constraints, and splits a buy budget
// into compliant child orders when a single order would exceed the
// per-order caps. All arithmetic is decimal to avoid float drift at the
// precision boundary.
package norm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"sniper/internal/gateway/exchange"
)

// ErrBelowMinNotional means the budget (or its remainder) cannot produce
// a valid order. Callers abandon the remainder rather than submit an
// order the exchange would reject.
var ErrBelowMinNotional = errors.New("budget below minimum notional")

// maxSlices bounds the splitting loop. A budget needing more child
// orders than this is almost certainly a configuration mistake.
const maxSlices = 20

// Slice is one compliant child order of a split budget.
type Slice struct {
	Quantity decimal.Decimal
	Notional decimal.Decimal
}

// Plan is the normalized decomposition of a quote-currency budget.
type Plan struct {
	Slices []Slice
	// Abandoned is the budget remainder too small to order.
	Abandoned decimal.Decimal
}

// TotalQuantity sums the child quantities.
func (p *Plan) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, s := range p.Slices {
		total = total.Add(s.Quantity)
	}
	return total
}

// FloorToStep returns the largest multiple of step not exceeding qty,
// never negative. A non-positive step leaves qty untouched.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// BuildPlan converts a quote-currency budget at the given price into one
// or more compliant child orders under rules.
func BuildPlan(budget, price float64, rules *exchange.SymbolRules) (*Plan, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("norm: invalid budget %v", budget)
	}
	if price <= 0 {
		return nil, fmt.Errorf("norm: invalid price %v", price)
	}
	if rules == nil {
		return nil, fmt.Errorf("norm: symbol rules are required")
	}

	budgetD := decimal.NewFromFloat(budget)
	priceD := decimal.NewFromFloat(price)
	step := parse(rules.StepSize)
	minQty := parse(rules.MinQty)
	maxQty := parse(rules.MaxQty)
	minNotional := parse(rules.MinNotional)
	maxNotional := parse(rules.MaxNotional)

	// Per-order quantity cap from whichever of max-quantity and
	// max-notional binds first.
	perOrderCap := maxQty
	if maxNotional.Sign() > 0 {
		byNotional := FloorToStep(maxNotional.Div(priceD), step)
		if perOrderCap.Sign() <= 0 || byNotional.LessThan(perOrderCap) {
			perOrderCap = byNotional
		}
	}

	plan := &Plan{}
	remaining := budgetD
	for len(plan.Slices) < maxSlices {
		if minNotional.Sign() > 0 && remaining.LessThan(minNotional) {
			break
		}
		qty := FloorToStep(remaining.Div(priceD), step)
		if qty.Sign() <= 0 || (minQty.Sign() > 0 && qty.LessThan(minQty)) {
			break
		}
		if perOrderCap.Sign() > 0 && qty.GreaterThan(perOrderCap) {
			qty = perOrderCap
		}
		notional := qty.Mul(priceD)
		if minNotional.Sign() > 0 && notional.LessThan(minNotional) {
			// Rounding down crossed the notional floor; the remainder
			// cannot produce a valid order.
			break
		}
		plan.Slices = append(plan.Slices, Slice{Quantity: qty, Notional: notional})
		remaining = remaining.Sub(notional)
	}

	plan.Abandoned = remaining
	if len(plan.Slices) == 0 {
		return nil, ErrBelowMinNotional
	}
	return plan, nil
}

// FormatQuantity renders qty at the step size's precision.
func FormatQuantity(qty decimal.Decimal, stepSize string) string {
	return qty.StringFixed(precisionOf(stepSize))
}

// AdjustPrice floors a price to the tick size and renders it at the
// tick's precision.
func AdjustPrice(price float64, tickSize string) string {
	tick := parse(tickSize)
	p := FloorToStep(decimal.NewFromFloat(price), tick)
	return p.StringFixed(precisionOf(tickSize))
}

// precisionOf derives decimal places from an increment string:
// "0.0100" has 2 significant decimals, "1" has 0.
func precisionOf(increment string) int32 {
	increment = strings.TrimSpace(increment)
	if increment == "" {
		return 8
	}
	d := parse(increment)
	if d.Sign() <= 0 {
		return 8
	}
	s := strings.TrimRight(d.String(), "0")
	if idx := strings.Index(s, "."); idx >= 0 {
		return int32(len(s) - idx - 1)
	}
	return 0
}

func parse(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
