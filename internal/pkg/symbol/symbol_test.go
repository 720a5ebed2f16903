package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"btc/usdt", "BTCUSDT"},
		{"VFARM", "VFARMUSDT"},
		{"vfarm-usdt", "VFARMUSDT"},
		{" eth_btc ", "ETHBTC"},
		{"SOL:USDC", "SOLUSDC"},
		{"", ""},
		{"usdt", "USDTUSDT"}, // bare quote asset still needs a quote suffix
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.raw), "raw=%q", tc.raw)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("BTCUSDT"))
	assert.True(t, Valid("VFARMUSDC"))
	assert.False(t, Valid("BTC/USDT"))
	assert.False(t, Valid("btcusdt"))
	assert.False(t, Valid("USDT")) // quote alone is not a pair
	assert.False(t, Valid(""))
}

func TestBaseQuote(t *testing.T) {
	assert.Equal(t, "VFARM", Base("VFARMUSDT"))
	assert.Equal(t, "USDT", Quote("VFARMUSDT"))
	assert.Equal(t, "ETH", Base("ETHBTC"))
	assert.Equal(t, "BTC", Quote("ETHBTC"))
}
