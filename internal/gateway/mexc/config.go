package mexc

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	WSBaseURL   string
	APIKey      string
	SecretKey   string
	HTTPTimeout time.Duration
	RecvWindow  int64

	BreakerThreshold int
	BreakerTimeout   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.mexc.com"
	}
	out.WSBaseURL = strings.TrimSpace(out.WSBaseURL)
	if out.WSBaseURL == "" {
		out.WSBaseURL = "wss://wbs.mexc.com/ws"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.RecvWindow <= 0 {
		out.RecvWindow = 5000
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = 30 * time.Second
	}
	return out
}
