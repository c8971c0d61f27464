package conductor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// PlanState represents the state of plan execution as a whole.
type PlanState string

const (
	PlanStateCreated         PlanState = "created"
	PlanStateRunning         PlanState = "running"
	PlanStateCompleted       PlanState = "completed"
	PlanStatePartiallyFailed PlanState = "partially_failed"
	PlanStateFailed          PlanState = "failed"
)

// Step is one tool invocation within a plan. Arguments may embed placeholder
// expressions referencing prior steps or plan tags.
type Step struct {
	ID        string         `json:"id" yaml:"id"`
	Intent    string         `json:"intent,omitempty" yaml:"intent,omitempty"`
	ToolName  string         `json:"tool_name" yaml:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Status    StepStatus     `json:"status" yaml:"status,omitempty"`
}

// Plan is an ordered sequence of tool-invocation steps derived from one user
// request. A plan owns exactly one dependency scope, keyed by its identifier.
type Plan struct {
	id        string
	sessionID string
	userID    string
	input     string
	steps     []Step
	state     PlanState

	// Fields reconstructed at runtime (not serialized)
	store    *Store
	resolver *Resolver
	cfg      *coordinatorConfig
}

// NewPlan builds an executable plan from an ordered list of steps. Steps with
// an empty identifier are assigned one from their position.
func (c *Coordinator) NewPlan(sessionID, userID, input string, steps []Step, options ...Option) *Plan {
	cfg := c.coordinatorConfig.Clone()
	for _, opt := range options {
		opt(cfg)
	}

	planID := uuid.New().String()

	normalized := make([]Step, len(steps))
	copy(normalized, steps)
	for i := range normalized {
		if normalized[i].ID == "" {
			normalized[i].ID = "step_" + uuid.New().String()[:8]
		}
		normalized[i].Status = ""
	}

	return &Plan{
		id:        planID,
		sessionID: sessionID,
		userID:    userID,
		input:     input,
		steps:     normalized,
		state:     PlanStateCreated,

		store:    c.store,
		resolver: c.resolver,
		cfg:      cfg,
	}
}

// ID returns the plan identifier, which is also its dependency scope key.
func (p *Plan) ID() string {
	return p.id
}

// State returns the current plan state.
func (p *Plan) State() PlanState {
	return p.state
}

// Steps returns a copy of the plan's steps with their current status.
func (p *Plan) Steps() []Step {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	return steps
}

// Execute runs all steps strictly in declared order. Before dispatching step
// i, its arguments are resolved against the store populated by steps 0..i-1,
// so a step can only reference prior steps; a reference to a not-yet-run step
// degrades to fallback or unresolved text, it never blocks.
func (p *Plan) Execute(ctx context.Context) error {
	if p.state != PlanStateCreated {
		return ErrPlanAlreadyExecuted
	}
	if p.store == nil || p.resolver == nil || p.cfg == nil {
		return ErrPlanNotInitialized
	}

	logger := p.cfg.logger.With("conductor.plan_id", p.id)
	ctx = ctxWithLogger(ctx, logger)

	p.state = PlanStateRunning
	p.emit(ctx, Event{Type: EventPlanStarted, Data: map[string]any{"steps": len(p.steps)}})
	logger.Info("plan execution started", "steps", len(p.steps), "session_id", p.sessionID)

	completed := 0
	failed := 0

	for i := range p.steps {
		step := &p.steps[i]

		// Cancellation abandons the in-flight plan without further side effects.
		if err := ctx.Err(); err != nil {
			p.state = PlanStateFailed
			return goerr.Wrap(err, "plan execution cancelled", goerr.V("plan_id", p.id), goerr.V("step_id", step.ID))
		}

		if err := p.executeStep(ctx, step); err != nil {
			failed++
			if !p.cfg.continueOnError {
				p.state = PlanStateFailed
				p.finish(ctx)
				return goerr.Wrap(err, "plan step execution failed",
					goerr.V("plan_id", p.id), goerr.V("step_id", step.ID))
			}
			logger.Info("step failed, continuing", "step_id", step.ID, "error", err)
			continue
		}
		completed++
	}

	switch {
	case failed == 0:
		p.state = PlanStateCompleted
	case completed > 0:
		p.state = PlanStatePartiallyFailed
	default:
		p.state = PlanStateFailed
	}

	p.finish(ctx)
	logger.Info("plan execution finished", "state", p.state, "completed", completed, "failed", failed)

	return nil
}

// executeStep resolves one step's arguments, dispatches it and records the
// result. A tool error and a tool timeout are treated identically: both
// produce a failed StepResult.
func (p *Plan) executeStep(ctx context.Context, step *Step) error {
	logger := LoggerFromContext(ctx)

	args := p.resolver.ResolveArgs(p.id, step.Arguments)

	step.Status = StepStatusRunning
	result := &StepResult{
		PlanID:    p.id,
		StepID:    step.ID,
		Status:    StepStatusRunning,
		StartedAt: time.Now(),
	}
	p.store.SaveStepResult(result)

	p.emit(ctx, Event{Type: EventStepStarted, StepID: step.ID, Message: step.Intent,
		Data: map[string]any{"tool_name": step.ToolName}})

	if p.cfg.stepStartHook != nil {
		if err := p.cfg.stepStartHook(ctx, p, step, args); err != nil {
			return goerr.Wrap(err, "failed to call StepStartHook")
		}
	}

	logger.Debug("dispatching step", "step_id", step.ID, "tool_name", step.ToolName, "args", args)

	output, invokeErr := p.cfg.invoker.Invoke(ctx, step.ToolName, args)

	result.EndedAt = time.Now()
	if invokeErr != nil {
		result.Status = StepStatusFailed
		result.Error = invokeErr
	} else {
		result.Status = StepStatusCompleted
		result.RawOutput = output
	}

	if p.cfg.stepResultHook != nil {
		if err := p.cfg.stepResultHook(ctx, p, step, result); err != nil {
			return goerr.Wrap(err, "failed to call StepResultHook")
		}
	}

	p.store.SaveStepResult(result)
	step.Status = result.Status

	if invokeErr != nil {
		p.emit(ctx, Event{Type: EventStepFailed, StepID: step.ID, Message: invokeErr.Error(),
			Data: map[string]any{"tool_name": step.ToolName}})
		return goerr.Wrap(ErrStepFailed, step.ToolName+" failed",
			goerr.V("step_id", step.ID), goerr.V("cause", invokeErr))
	}

	p.emit(ctx, Event{Type: EventStepCompleted, StepID: step.ID,
		Data: map[string]any{"tool_name": step.ToolName, "output": result.RawOutput}})

	return nil
}

func (p *Plan) finish(ctx context.Context) {
	p.emit(ctx, Event{Type: EventPlanCompleted, Data: map[string]any{"state": string(p.state)}})

	if p.cfg.planDoneHook != nil {
		if err := p.cfg.planDoneHook(ctx, p); err != nil {
			LoggerFromContext(ctx).Warn("failed to call PlanDoneHook", "plan_id", p.id, "error", err)
		}
	}
}

func (p *Plan) emit(ctx context.Context, ev Event) {
	ev.SessionID = p.sessionID
	ev.PlanID = p.id
	ev.Time = time.Now()

	if err := p.cfg.sink.Push(ctx, ev); err != nil {
		LoggerFromContext(ctx).Warn("failed to push plan event",
			"event_type", ev.Type, "plan_id", p.id, "error", err)
	}
}

// Results returns the recorded results of all steps executed so far.
func (p *Plan) Results() []*StepResult {
	results := make([]*StepResult, 0, len(p.steps))
	for _, step := range p.steps {
		if result, ok := p.store.StepResult(p.id, step.ID); ok {
			results = append(results, result)
		}
	}
	return results
}

// Serialization

const PlanVersion = 1

type planData struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Input     string    `json:"input"`
	Steps     []Step    `json:"steps"`
	State     PlanState `json:"state"`
}

// MarshalJSON implements json.Marshaler for Plan.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planData{
		Version:   PlanVersion,
		ID:        p.id,
		SessionID: p.sessionID,
		UserID:    p.userID,
		Input:     p.input,
		Steps:     p.steps,
		State:     p.state,
	})
}

// NewPlanFromData restores a serialized plan. Runtime fields are rebuilt from
// the coordinator.
func (c *Coordinator) NewPlanFromData(data []byte, options ...Option) (*Plan, error) {
	var pd planData
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal plan data")
	}

	if pd.Version != PlanVersion {
		return nil, goerr.New("plan version mismatch",
			goerr.V("expected", PlanVersion), goerr.V("actual", pd.Version))
	}

	cfg := c.coordinatorConfig.Clone()
	for _, opt := range options {
		opt(cfg)
	}

	return &Plan{
		id:        pd.ID,
		sessionID: pd.SessionID,
		userID:    pd.UserID,
		input:     pd.Input,
		steps:     pd.Steps,
		state:     pd.State,

		store:    c.store,
		resolver: c.resolver,
		cfg:      cfg,
	}, nil
}
