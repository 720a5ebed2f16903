// Package scheduler polls for due targets and hands them to the execution
// pipeline. It enforces the confidence gate and interprets the pipeline's
// disposition; all state transitions happen in the store, so any number of
// scheduler instances can run against the same database.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sniper/internal/config"
	"sniper/internal/engine/executor"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/store"
	"sniper/internal/types"
)

// Buyer is the slice of the execution pipeline the scheduler drives.
type Buyer interface {
	ExecuteBuy(ctx context.Context, t *types.Target) (executor.Disposition, error)
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Processed     int64     `json:"processed"`
	Completed     int64     `json:"completed"`
	Deferred      int64     `json:"deferred"`
	Skipped       int64     `json:"skipped"`
	Retried       int64     `json:"retried"`
	Failed        int64     `json:"failed"`
	LowConfidence int64     `json:"low_confidence"`
	LastTick      time.Time `json:"last_tick,omitempty"`
	Paused        bool      `json:"paused"`
}

type Scheduler struct {
	targets store.TargetStore
	buyer   Buyer
	metrics *metrics.Metrics
	cfg     config.EngineConfig

	paused atomic.Bool

	mu    sync.Mutex
	stats Stats

	now func() time.Time
}

func New(targets store.TargetStore, buyer Buyer, m *metrics.Metrics, cfg config.EngineConfig) *Scheduler {
	return &Scheduler{
		targets: targets,
		buyer:   buyer,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Infof("scheduler started, interval=%s threshold=%v", s.cfg.SchedulerInterval, s.cfg.ConfidenceThreshold)
	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Pause stops processing on subsequent ticks without stopping the loop.
func (s *Scheduler) Pause()       { s.paused.Store(true) }
func (s *Scheduler) Resume()      { s.paused.Store(false) }
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Tick processes every currently due target once.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.paused.Load() {
		return
	}
	now := s.now()
	due, err := s.targets.ListDue(ctx, s.cfg.Owner, s.cfg.MaxRetries, now)
	if err != nil {
		logger.Errorf("scheduler: list due targets: %v", err)
		return
	}
	for i := range due {
		t := &due[i]
		if !t.Due(now) {
			continue
		}
		s.process(ctx, t, false)
	}
	s.mu.Lock()
	s.stats.LastTick = now
	s.mu.Unlock()
}

// ProcessTarget executes a single target on operator request, bypassing
// the due-time and confidence checks but not the claim.
func (s *Scheduler) ProcessTarget(ctx context.Context, id string) (executor.Disposition, error) {
	t, err := s.targets.Get(ctx, id)
	if err != nil {
		return executor.DispositionSkipped, err
	}
	if t == nil {
		return executor.DispositionSkipped, fmt.Errorf("target %s not found", id)
	}
	if t.Terminal() {
		return executor.DispositionSkipped, fmt.Errorf("target %s is %s", id, t.Status)
	}
	return s.process(ctx, t, true), nil
}

func (s *Scheduler) process(ctx context.Context, t *types.Target, manual bool) executor.Disposition {
	if !manual && t.Confidence < s.cfg.ConfidenceThreshold {
		// Low confidence is not a failure: the detector may raise the
		// score on a later pass, so the target stays eligible.
		logger.Infof("scheduler: skipping %s (%s), confidence %v below %v",
			t.ID, t.Symbol, t.Confidence, s.cfg.ConfidenceThreshold)
		s.count(func(st *Stats) { st.LowConfidence++ })
		s.observe("low_confidence")
		return executor.DispositionSkipped
	}

	disp, err := s.buyer.ExecuteBuy(ctx, t)
	if err != nil {
		logger.Errorf("scheduler: target %s: %v", t.ID, err)
	}
	s.count(func(st *Stats) {
		st.Processed++
		switch disp {
		case executor.DispositionCompleted:
			st.Completed++
		case executor.DispositionDeferred:
			st.Deferred++
		case executor.DispositionSkipped:
			st.Skipped++
		case executor.DispositionRetry:
			st.Retried++
		case executor.DispositionFailed:
			st.Failed++
		}
	})
	s.observe(outcomeLabel(disp))
	return disp
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Paused = s.paused.Load()
	return st
}

func (s *Scheduler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Scheduler) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.TargetsTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeLabel(d executor.Disposition) string {
	switch d {
	case executor.DispositionCompleted:
		return "completed"
	case executor.DispositionDeferred:
		return "deferred"
	case executor.DispositionSkipped:
		return "skipped"
	case executor.DispositionRetry:
		return "retried"
	case executor.DispositionFailed:
		return "failed"
	}
	return "unknown"
}
