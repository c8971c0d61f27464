package conductor

import (
	"maps"
	"sync"
	"time"
)

// StepStatus represents the lifecycle state of a recorded step result.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepResult records the outcome of one executed step of a plan run.
// It is created in running state when a step begins, transitions once to a
// terminal state and is immutable afterwards.
type StepResult struct {
	PlanID    string
	StepID    string
	Status    StepStatus
	StartedAt time.Time
	EndedAt   time.Time

	// RawOutput is the opaque result payload from the invoked tool. Consumers
	// navigate it by dotted path via the resolver.
	RawOutput map[string]any

	// Optional enrichments a collaborator may attach before the result is saved.
	Summary     string
	Extracted   map[string]any
	Attachments []string
	Logs        []string

	Error error
}

// Clone returns a deep-enough copy so that stored results stay immutable even
// if the caller keeps mutating its own maps.
func (r *StepResult) Clone() *StepResult {
	if r == nil {
		return nil
	}
	c := *r
	c.RawOutput = maps.Clone(r.RawOutput)
	c.Extracted = maps.Clone(r.Extracted)
	c.Attachments = append([]string(nil), r.Attachments...)
	c.Logs = append([]string(nil), r.Logs...)
	return &c
}

type planScope struct {
	steps map[string]*StepResult
	tags  map[string]any
}

// Store is the in-memory dependency registry, scoped two-level
// (plan -> step/tag) to prevent cross-run leakage. Independent plans touch
// disjoint scopes and may run fully concurrently.
type Store struct {
	mu     sync.RWMutex
	scopes map[string]*planScope
}

// NewStore creates an empty dependency store.
func NewStore() *Store {
	return &Store{
		scopes: map[string]*planScope{},
	}
}

func (s *Store) scope(planID string) *planScope {
	sc, ok := s.scopes[planID]
	if !ok {
		sc = &planScope{
			steps: map[string]*StepResult{},
			tags:  map[string]any{},
		}
		s.scopes[planID] = sc
	}
	return sc
}

// SaveStepResult stores the result of a completed (or still running) step.
func (s *Store) SaveStepResult(result *StepResult) {
	if result == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(result.PlanID).steps[result.StepID] = result.Clone()
}

// StepResult returns the recorded result of a step, if any.
func (s *Store) StepResult(planID, stepID string) (*StepResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[planID]
	if !ok {
		return nil, false
	}
	result, ok := sc.steps[stepID]
	return result, ok
}

// SavePlanData stores a named value shared across the whole plan. Last write
// wins.
func (s *Store) SavePlanData(planID, tag string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope(planID).tags[tag] = value
}

// PlanData returns a plan-level tagged value, if any.
func (s *Store) PlanData(planID, tag string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[planID]
	if !ok {
		return nil, false
	}
	value, ok := sc.tags[tag]
	return value, ok
}

// Release drops the whole scope of a plan. Called on run teardown so that
// long-lived processes do not accumulate dead scopes.
func (s *Store) Release(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, planID)
}
