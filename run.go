package conductor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Run binds one plan to its originating session and user. A run owns exactly
// one dependency scope (its plan identifier); discarding the run releases the
// scope.
type Run struct {
	ID        string
	SessionID string
	UserID    string
	Input     string
	Plan      *Plan

	lastActive time.Time
	cancel     context.CancelFunc
}

// RunRegistry tracks live runs and bounds the growth of the dependency store:
// scopes are dropped when a session closes or a run sits idle past the
// configured timeout.
type RunRegistry struct {
	mu sync.Mutex

	store       *Store
	idleTimeout time.Duration
	logger      *slog.Logger

	runs map[string]*Run
}

func newRunRegistry(store *Store, idleTimeout time.Duration, logger *slog.Logger) *RunRegistry {
	return &RunRegistry{
		store:       store,
		idleTimeout: idleTimeout,
		logger:      logger,
		runs:        map[string]*Run{},
	}
}

// Register creates a run for the given plan.
func (r *RunRegistry) Register(plan *Plan) *Run {
	run := &Run{
		ID:         plan.ID(),
		SessionID:  plan.sessionID,
		UserID:     plan.userID,
		Input:      plan.input,
		Plan:       plan,
		lastActive: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run

	return run
}

// Bind derives a cancellable context for the run's execution. Closing the
// session cancels it, abandoning any in-flight step.
func (r *RunRegistry) Bind(ctx context.Context, run *Run) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	run.cancel = cancel
	run.lastActive = time.Now()

	return ctx
}

// Get returns a registered run and marks it active.
func (r *RunRegistry) Get(runID string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if ok {
		run.lastActive = time.Now()
	}
	return run, ok
}

// Touch marks a run as active.
func (r *RunRegistry) Touch(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.runs[runID]; ok {
		run.lastActive = time.Now()
	}
}

// Len returns the number of live runs.
func (r *RunRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// CloseSession discards every run of a session: in-flight steps are abandoned
// via context cancellation and the dependency scopes are released.
func (r *RunRegistry) CloseSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, run := range r.runs {
		if run.SessionID != sessionID {
			continue
		}
		r.discard(id, run, "session closed")
	}
}

// Discard drops one run and releases its scope.
func (r *RunRegistry) Discard(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.runs[runID]; ok {
		r.discard(runID, run, "discarded")
	}
}

// discard removes a run. Caller holds the lock.
func (r *RunRegistry) discard(runID string, run *Run, reason string) {
	if run.cancel != nil {
		run.cancel()
	}
	r.store.Release(runID)
	delete(r.runs, runID)

	r.logger.Debug("run discarded", "run_id", runID, "session_id", run.SessionID, "reason", reason)
}

// StartGC launches the idle-run collector. It stops when ctx is done.
func (r *RunRegistry) StartGC(ctx context.Context) {
	interval := r.idleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.collect()
			}
		}
	}()
}

func (r *RunRegistry) collect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := time.Now().Add(-r.idleTimeout)
	for id, run := range r.runs {
		if run.lastActive.Before(deadline) {
			r.discard(id, run, "idle timeout")
		}
	}
}
