// Package refresh drives periodic and on-demand re-collection of repositories.
package refresh

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the period between automatic refreshes.
const DefaultInterval = 5 * time.Second

// Collector is what the Scheduler triggers. Implementations must not let two collections
// of the same repository overlap; the Scheduler relies on that to merge its two trigger
// sources.
type Collector interface {
	CollectAll(priority string)
	Request(path string) bool
}

// Scheduler calls CollectAll once at start and then on every tick, and forwards
// on-demand triggers. Ticks are skipped while paused; on-demand triggers are not.
type Scheduler struct {
	target   Collector
	interval time.Duration
	priority string
	logger   *zap.Logger

	paused  atomic.Bool
	started atomic.Bool

	mu      sync.Mutex
	all     bool
	pending []string
	signal  chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a stopped Scheduler. priority is passed to every CollectAll call.
func New(target Collector, interval time.Duration, priority string, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		target:   target,
		interval: interval,
		priority: priority,
		logger:   logger,
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduling goroutine. Calling Start more than once has no effect.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
}

// Stop ends scheduling and waits for the goroutine to exit. No trigger fires after Stop
// returns. It is safe to call Stop more than once, or without Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

// Pause suspends timer-driven refreshes, e.g. while a deletion awaits confirmation.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume re-enables timer-driven refreshes.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Paused reports whether timer-driven refreshes are suspended.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Trigger requests an immediate refresh of the repository at path, or of every repository
// when path is empty. Triggers that arrive before the previous ones were handled are merged.
func (s *Scheduler) Trigger(path string) {
	select {
	case <-s.stop:
		return
	default:
	}

	s.mu.Lock()
	if path == "" {
		s.all = true
	} else if !contains(s.pending, path) {
		s.pending = append(s.pending, path)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.target.CollectAll(s.priority)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.paused.Load() {
				s.logger.Debug("refresh skipped while paused")
				continue
			}
			s.target.CollectAll(s.priority)
		case <-s.signal:
			s.drain()
		}
	}
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	all, pending := s.all, s.pending
	s.all, s.pending = false, nil
	s.mu.Unlock()

	if all {
		s.logger.Debug("on-demand refresh", zap.String("scope", "all"))
		s.target.CollectAll(s.priority)
		return
	}
	for _, path := range pending {
		s.logger.Debug("on-demand refresh", zap.String("repo", path))
		s.target.Request(path)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
