// Package scheduler provides the engine's trigger points: a sync run on
// start, on every offline-to-online transition, on a fixed interval while
// online, and on explicit user request.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gardenproof/fieldsync/internal/engine"
	"github.com/gardenproof/fieldsync/internal/logging"
	"github.com/gardenproof/fieldsync/internal/syncstate"
)

// Config holds scheduler configuration.
type Config struct {
	SyncInterval time.Duration // how often to sync while online
	SyncTimeout  time.Duration // per-run deadline
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		SyncInterval: 15 * time.Minute,
		SyncTimeout:  5 * time.Minute,
	}
}

// Scheduler owns the background sync triggers. The orchestrator's own
// in-flight guard makes overlapping triggers harmless; the scheduler just
// decides when to fire.
type Scheduler struct {
	orch  *engine.Orchestrator
	state *syncstate.Container
	cfg   Config
	log   *zap.SugaredLogger

	trigger     chan struct{}
	stopCh      chan struct{}
	unsubscribe func()
	wg          sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	wasOnline bool
}

// New creates a Scheduler.
func New(orch *engine.Orchestrator, state *syncstate.Container, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultConfig().SyncInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultConfig().SyncTimeout
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Scheduler{
		orch:    orch,
		state:   state,
		cfg:     cfg,
		log:     log,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the scheduler loop and fires the app-start sync run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.wasOnline = s.state.Snapshot().IsOnline
	s.mu.Unlock()

	// Reconnect trigger: fire on the offline-to-online edge.
	s.unsubscribe = s.state.Subscribe(func(snap syncstate.Snapshot) {
		s.mu.Lock()
		reconnected := snap.IsOnline && !s.wasOnline
		s.wasOnline = snap.IsOnline
		s.mu.Unlock()

		if reconnected {
			s.log.Infow("connectivity restored, scheduling sync")
			s.TriggerSync()
		}
	})

	s.wg.Add(1)
	go s.loop(ctx)

	// App-start run.
	s.TriggerSync()

	s.log.Infow("sync scheduler started", "interval", s.cfg.SyncInterval)
}

// Stop halts the scheduler gracefully. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.unsubscribe()
	close(s.stopCh)
	s.wg.Wait()

	s.log.Infow("sync scheduler stopped")
}

// TriggerSync requests a sync run (the user-initiated retry entry point).
// Coalesces with any already-requested run.
func (s *Scheduler) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runSync(ctx)
		case <-s.trigger:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
	defer cancel()

	if err := s.orch.SyncAll(syncCtx); err != nil {
		s.log.Errorw("sync run failed", "error", err)
	}
}
