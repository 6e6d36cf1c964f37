package session

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

const (
	PolicyInactivity = "inactivity"
	PolicyRetention  = "retention"
)

// Policy evicts sessions idle for longer than MaxIdle, checked every Interval.
// A policy with a non-positive Interval is never scheduled.
type Policy struct {
	Name     string
	Interval time.Duration
	MaxIdle  time.Duration
}

// DefaultPolicies returns the hourly inactivity sweep and the daily 30-day retention sweep.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyInactivity, Interval: time.Hour, MaxIdle: time.Hour},
		{Name: PolicyRetention, Interval: 24 * time.Hour, MaxIdle: 30 * 24 * time.Hour},
	}
}

// SweepObserver receives eviction counts, typically a metrics sink.
type SweepObserver interface {
	ObserveEvictions(policy string, evicted int)
	SetActiveSessions(n int)
}

// Sweeper runs each policy on its own ticker until stopped.
type Sweeper struct {
	store    Store
	policies []Policy
	observer SweepObserver
	logger   *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSweeper creates a sweeper for the store. observer may be nil.
func NewSweeper(store Store, policies []Policy, observer SweepObserver, logger *logging.Logger) *Sweeper {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:    store,
		policies: policies,
		observer: observer,
		logger:   logger,
	}
}

// Start launches one goroutine per scheduled policy. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, policy := range s.policies {
		if policy.Interval <= 0 {
			s.logger.Info("session sweep disabled", "policy", policy.Name)
			continue
		}
		s.wg.Add(1)
		go s.run(sweepCtx, policy)
	}
}

// Stop cancels all sweeps and waits for them to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// RunOnce applies a single policy immediately and returns the number of evicted sessions.
func (s *Sweeper) RunOnce(ctx context.Context, policy Policy) int {
	start := time.Now()
	removed := s.store.Sweep(policy.MaxIdle)
	remaining := s.store.Len()

	if s.observer != nil {
		s.observer.ObserveEvictions(policy.Name, removed)
		s.observer.SetActiveSessions(remaining)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "evicted idle sessions",
			"policy", policy.Name,
			"removed", removed,
			"remaining", remaining,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		s.logger.DebugContext(ctx, "session sweep found nothing to evict", "policy", policy.Name, "remaining", remaining)
	}
	return removed
}

func (s *Sweeper) run(ctx context.Context, policy Policy) {
	defer s.wg.Done()

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()

	s.logger.Info("session sweep started", "policy", policy.Name, "interval", policy.Interval.String(), "max_idle", policy.MaxIdle.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, policy)
		}
	}
}
