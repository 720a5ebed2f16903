package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Storage  StorageConfig  `mapstructure:"storage"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Risk     RiskConfig     `mapstructure:"risk"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type EngineConfig struct {
	// Owner is the user id this engine instance executes for. Targets
	// with an empty user id (system-owned) are always eligible.
	Owner string `mapstructure:"owner"`

	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval"`

	// ConfidenceThreshold gates execution on the detector's 0-100 score.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// MaxRetries caps target retry_count before the scheduler abandons it.
	MaxRetries int `mapstructure:"max_retries"`

	PriceAttempts   int           `mapstructure:"price_attempts"`
	PriceRetryDelay time.Duration `mapstructure:"price_retry_delay"`

	OrderRetries      int           `mapstructure:"order_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`

	PendingRechecks int `mapstructure:"pending_rechecks"`

	// PartialClaimTimeout is how long a position may sit in partial
	// before a sweep returns it to open.
	PartialClaimTimeout time.Duration `mapstructure:"partial_claim_timeout"`

	OrderBookDepth int `mapstructure:"order_book_depth"`

	// ReconcileSpec is the cron spec for the background reconciliation
	// sweep of pending / zero-quantity placements.
	ReconcileSpec string `mapstructure:"reconcile_spec"`
}

type ExchangeConfig struct {
	RESTBaseURL string        `mapstructure:"rest_base_url"`
	WSBaseURL   string        `mapstructure:"ws_base_url"`
	APIKey      string        `mapstructure:"api_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	RecvWindow  int64         `mapstructure:"recv_window"`

	// StreamSymbols are subscribed on the price stream in addition to the
	// symbols of open positions rehydrated at startup.
	StreamSymbols []string `mapstructure:"stream_symbols"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type RiskConfig struct {
	DefaultBuyAmount float64 `mapstructure:"default_buy_amount"`
	StopLossPct      float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct    float64 `mapstructure:"take_profit_pct"`
	MaxHoldMinutes   int     `mapstructure:"max_hold_minutes"`

	// ProfilesPath points at the take-profit tier file (hot reloaded).
	ProfilesPath string `mapstructure:"profiles_path"`
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Engine.SchedulerInterval <= 0 {
		c.Engine.SchedulerInterval = 5 * time.Second
	}
	if c.Engine.MonitorInterval <= 0 {
		c.Engine.MonitorInterval = 5 * time.Second
	}
	if c.Engine.ConfidenceThreshold <= 0 {
		c.Engine.ConfidenceThreshold = 70
	}
	if c.Engine.MaxRetries <= 0 {
		c.Engine.MaxRetries = 3
	}
	if c.Engine.PriceAttempts <= 0 {
		c.Engine.PriceAttempts = 3
	}
	if c.Engine.PriceRetryDelay <= 0 {
		c.Engine.PriceRetryDelay = time.Second
	}
	if c.Engine.OrderRetries <= 0 {
		c.Engine.OrderRetries = 3
	}
	if c.Engine.BackoffBase <= 0 {
		c.Engine.BackoffBase = time.Second
	}
	if c.Engine.BackoffMultiplier < 1 {
		c.Engine.BackoffMultiplier = 2
	}
	if c.Engine.BackoffMax <= 0 {
		c.Engine.BackoffMax = 5 * time.Second
	}
	if c.Engine.PendingRechecks <= 0 {
		c.Engine.PendingRechecks = 3
	}
	if c.Engine.PartialClaimTimeout <= 0 {
		c.Engine.PartialClaimTimeout = 2 * time.Minute
	}
	if c.Engine.OrderBookDepth <= 0 {
		c.Engine.OrderBookDepth = 5
	}
	if c.Engine.ReconcileSpec == "" {
		c.Engine.ReconcileSpec = "@every 1m"
	}
	if c.Exchange.HTTPTimeout <= 0 {
		c.Exchange.HTTPTimeout = 10 * time.Second
	}
	if c.Exchange.RecvWindow <= 0 {
		c.Exchange.RecvWindow = 5000
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/sniper.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Risk.DefaultBuyAmount <= 0 {
		c.Risk.DefaultBuyAmount = 100
	}
	if c.Risk.StopLossPct <= 0 {
		c.Risk.StopLossPct = 5
	}
	if c.Risk.TakeProfitPct <= 0 {
		c.Risk.TakeProfitPct = 10
	}
	if c.Risk.MaxHoldMinutes <= 0 {
		c.Risk.MaxHoldMinutes = 60
	}
}

func validate(c *Config) error {
	if c.Engine.ConfidenceThreshold > 100 {
		return fmt.Errorf("config: confidence_threshold must be within [0,100], got %v", c.Engine.ConfidenceThreshold)
	}
	if c.Risk.StopLossPct >= 100 {
		return fmt.Errorf("config: stop_loss_pct must be below 100, got %v", c.Risk.StopLossPct)
	}
	if c.Engine.BackoffMax < c.Engine.BackoffBase {
		return fmt.Errorf("config: backoff_max (%s) below backoff_base (%s)", c.Engine.BackoffMax, c.Engine.BackoffBase)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("config: http addr is required")
	}
	return nil
}
