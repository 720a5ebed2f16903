package mexc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleFrameCachesMiniTickerPrice(t *testing.T) {
	s := NewPriceStream("wss://example")
	s.handleFrame([]byte(`{"c":"spot@public.miniTicker.v3.api@NEWUSDT","d":{"s":"NEWUSDT","p":"1.2345"},"t":1700000000000}`))
	assert.InDelta(t, 1.2345, s.Last("NEWUSDT"), 1e-9)
	assert.InDelta(t, 1.2345, s.Last("newusdt"), 1e-9)
}

func TestHandleFrameFallsBackToCloseField(t *testing.T) {
	s := NewPriceStream("wss://example")
	s.handleFrame([]byte(`{"c":"spot@public.miniTicker.v3.api@NEWUSDT","d":{"s":"NEWUSDT","c":"0.5"}}`))
	assert.InDelta(t, 0.5, s.Last("NEWUSDT"), 1e-9)
}

func TestHandleFrameIgnoresNonTickerFrames(t *testing.T) {
	s := NewPriceStream("wss://example")
	s.handleFrame([]byte(`{"id":0,"code":0,"msg":"PONG"}`))
	s.handleFrame([]byte(`{"c":"spot@public.deals.v3.api@NEWUSDT","d":{"s":"NEWUSDT","p":"9"}}`))
	s.handleFrame([]byte(`not json`))
	assert.Zero(t, s.Last("NEWUSDT"))
}

func TestHandleFrameIgnoresNonPositivePrices(t *testing.T) {
	s := NewPriceStream("wss://example")
	s.handleFrame([]byte(`{"c":"spot@public.miniTicker.v3.api@NEWUSDT","d":{"s":"NEWUSDT","p":"0"}}`))
	assert.Zero(t, s.Last("NEWUSDT"))
}

func TestLastExpiresStaleEntries(t *testing.T) {
	s := NewPriceStream("wss://example")
	s.mu.Lock()
	s.prices["NEWUSDT"] = streamPrice{price: 2, at: time.Now().Add(-maxStreamAge - time.Second)}
	s.mu.Unlock()
	assert.Zero(t, s.Last("NEWUSDT"))
}
