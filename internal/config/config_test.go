package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  log_level: debug
exchange:
  api_key: k
  secret_key: s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Engine.SchedulerInterval)
	assert.Equal(t, 70.0, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.BackoffBase)
	assert.Equal(t, 5*time.Second, cfg.Engine.BackoffMax)
	assert.Equal(t, "@every 1m", cfg.Engine.ReconcileSpec)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 100.0, cfg.Risk.DefaultBuyAmount)
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
engine:
  scheduler_interval: 250ms
  confidence_threshold: 85
  backoff_base: 2s
  backoff_max: 10s
exchange:
  http_timeout: 3s
  stream_symbols:
    - AUSDT
    - BUSDT
risk:
  stop_loss_pct: 7
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Engine.SchedulerInterval)
	assert.Equal(t, 85.0, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 2*time.Second, cfg.Engine.BackoffBase)
	assert.Equal(t, 3*time.Second, cfg.Exchange.HTTPTimeout)
	assert.Equal(t, []string{"AUSDT", "BUSDT"}, cfg.Exchange.StreamSymbols)
	assert.Equal(t, 7.0, cfg.Risk.StopLossPct)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "config.yaml", `
engine:
  confidence_threshold: 150
`)
	_, err := Load(path)
	assert.Error(t, err)

	path = writeFile(t, "config.yaml", `
engine:
  backoff_base: 10s
  backoff_max: 2s
`)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProfileRegistryTiers(t *testing.T) {
	path := writeFile(t, "profiles.yaml", `
tiers:
  - name: Conservative
    take_profit_pct: 5
    stop_loss_pct: 3
    max_hold_minutes: 30
  - name: aggressive
    take_profit_pct: 25
`)
	reg, err := NewProfileRegistry(path)
	require.NoError(t, err)

	tier, ok := reg.Tier("conservative")
	require.True(t, ok)
	assert.Equal(t, 5.0, tier.TakeProfitPct)
	assert.Equal(t, 30, tier.MaxHoldMinutes)

	// Lookups are case-insensitive.
	_, ok = reg.Tier("AGGRESSIVE")
	assert.True(t, ok)

	_, ok = reg.Tier("missing")
	assert.False(t, ok)
}

func TestProfileRegistryEmptyPath(t *testing.T) {
	reg, err := NewProfileRegistry("")
	require.NoError(t, err)
	_, ok := reg.Tier("any")
	assert.False(t, ok)
}
