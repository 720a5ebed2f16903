package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"sniper/internal/logger"
)

const (
	streamPingInterval = 30 * time.Second
	streamReadTimeout  = 90 * time.Second
	streamRedialDelay  = 5 * time.Second
	// maxStreamAge bounds how long a cached price stays usable; new
	// listings can go minutes between trades and a stale print is worse
	// than falling through to the next source.
	maxStreamAge = 30 * time.Second
)

// PriceStream maintains a miniTicker websocket subscription and caches the
// last price per symbol. The cache is a fallback source for the resolver,
// never authoritative.
type PriceStream struct {
	url string

	mu     sync.RWMutex
	prices map[string]streamPrice
}

type streamPrice struct {
	price float64
	at    time.Time
}

func NewPriceStream(url string) *PriceStream {
	return &PriceStream{
		url:    url,
		prices: make(map[string]streamPrice),
	}
}

// Last returns the cached stream price for a symbol, or 0 when none is
// cached or the cache entry has gone stale.
func (p *PriceStream) Last(symbol string) float64 {
	p.mu.RLock()
	entry, ok := p.prices[strings.ToUpper(symbol)]
	p.mu.RUnlock()
	if !ok || time.Since(entry.at) > maxStreamAge {
		return 0
	}
	return entry.price
}

func (p *PriceStream) put(symbol string, price float64) {
	if symbol == "" || price <= 0 {
		return
	}
	p.mu.Lock()
	p.prices[strings.ToUpper(symbol)] = streamPrice{price: price, at: time.Now()}
	p.mu.Unlock()
}

// Run dials the stream and processes frames until ctx is done, redialing
// on connection loss.
func (p *PriceStream) Run(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	for {
		if err := p.runOnce(ctx, symbols); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("mexc stream: connection lost (%v), redialing in %s", err, streamRedialDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(streamRedialDelay):
		}
	}
}

func (p *PriceStream) runOnce(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.url, err)
	}
	defer conn.Close()

	params := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		params = append(params, "spot@public.miniTicker.v3.api@"+strings.ToUpper(sym))
	}
	sub := map[string]any{"method": "SUBSCRIPTION", "params": params}
	payload, _ := json.Marshal(sub)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Infof("mexc stream: subscribed to %d symbols", len(symbols))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"PING"}`))
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		p.handleFrame(msg)
	}
}

// handleFrame extracts symbol/price from a miniTicker frame. Frames that
// are not ticker pushes (PONG, subscription acks) are ignored.
func (p *PriceStream) handleFrame(msg []byte) {
	if !gjson.ValidBytes(msg) {
		return
	}
	frame := gjson.ParseBytes(msg)
	if !strings.Contains(frame.Get("c").String(), "miniTicker") {
		return
	}
	sym := frame.Get("d.s").String()
	if sym == "" {
		sym = frame.Get("s").String()
	}
	price := frame.Get("d.p").Float()
	if price <= 0 {
		price = frame.Get("d.c").Float()
	}
	p.put(sym, price)
}
