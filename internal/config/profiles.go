package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"sniper/internal/logger"
)

// TierProfile is one named take-profit tier from the risk profile file.
type TierProfile struct {
	Name          string  `yaml:"name"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	// MaxHoldMinutes of 0 falls back to the global default.
	MaxHoldMinutes int `yaml:"max_hold_minutes"`
}

type profileFile struct {
	Tiers []TierProfile `yaml:"tiers"`
}

// ProfileRegistry holds the take-profit tier profiles and hot-reloads
// them when the file changes. Users reference tiers by name in their
// risk preferences.
type ProfileRegistry struct {
	path string

	mu       sync.RWMutex
	tiers    map[string]TierProfile
	loadedAt time.Time
}

// NewProfileRegistry reads the profile file and watches it for updates.
// An empty path yields an empty registry (tier lookups all miss).
func NewProfileRegistry(path string) (*ProfileRegistry, error) {
	r := &ProfileRegistry{path: strings.TrimSpace(path), tiers: map[string]TierProfile{}}
	if r.path == "" {
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk profiles failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("risk profile reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *ProfileRegistry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse risk profiles (%s): %w", r.path, err)
	}
	tiers := make(map[string]TierProfile, len(file.Tiers))
	for _, tier := range file.Tiers {
		name := strings.ToLower(strings.TrimSpace(tier.Name))
		if name == "" {
			continue
		}
		tiers[name] = tier
	}
	r.mu.Lock()
	r.tiers = tiers
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("risk profiles loaded: %d tiers from %s", len(tiers), r.path)
	return nil
}

// Tier returns the named tier profile.
func (r *ProfileRegistry) Tier(name string) (TierProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tier, ok := r.tiers[strings.ToLower(strings.TrimSpace(name))]
	return tier, ok
}
