// Package price resolves a tradable market price through an ordered
// fallback chain. New listings routinely have gaps in individual
// endpoints, so no single source is trusted.
package price

import (
	"context"
	"errors"
	"math"
	"time"

	"sniper/internal/gateway/exchange"
	"sniper/internal/logger"
)

// ErrUnavailable means every source failed on every attempt. It is a
// deferral signal, not a failure: callers return the target to ready and
// try again on a later tick.
var ErrUnavailable = errors.New("price unavailable")

// Unavailable reports whether err is the deferral signal.
func Unavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type Resolver struct {
	client exchange.Client
	stream exchange.StreamPriceSource

	attempts int
	delay    time.Duration
	depth    int

	sleep func(ctx context.Context, d time.Duration) error
}

func NewResolver(client exchange.Client, stream exchange.StreamPriceSource, attempts int, delay time.Duration, depth int) *Resolver {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	if depth <= 0 {
		depth = 5
	}
	return &Resolver{
		client:   client,
		stream:   stream,
		attempts: attempts,
		delay:    delay,
		depth:    depth,
		sleep:    sleepCtx,
	}
}

// Resolve walks the fallback chain up to the configured attempt count:
// ticker, cached stream price, direct price query, order-book midpoint.
// The first positive finite value wins.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (float64, error) {
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if p := r.resolveOnce(ctx, symbol); usable(p) {
			if attempt > 1 {
				logger.Debugf("price: %s resolved to %v on attempt %d", symbol, p, attempt)
			}
			return p, nil
		}
		if attempt < r.attempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				return 0, err
			}
		}
	}
	logger.Debugf("price: %s unavailable after %d attempts", symbol, r.attempts)
	return 0, ErrUnavailable
}

func (r *Resolver) resolveOnce(ctx context.Context, symbol string) float64 {
	if ticker, err := r.client.GetTicker(ctx, symbol); err == nil && ticker != nil {
		if usable(ticker.LastPrice) {
			return ticker.LastPrice
		}
	}

	if r.stream != nil {
		if p := r.stream.LastStreamPrice(symbol); usable(p) {
			return p
		}
	}

	if p, err := r.client.GetCurrentPrice(ctx, symbol); err == nil && usable(p) {
		return p
	}

	if book, err := r.client.GetOrderBook(ctx, symbol, r.depth); err == nil {
		if mid := book.MidPrice(); usable(mid) {
			return mid
		}
	}

	return 0
}

func usable(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
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
