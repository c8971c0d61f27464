package conductor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ActionStatus represents the lifecycle state of a proposed tool call.
type ActionStatus string

const (
	ActionStatusPendingAnalysis ActionStatus = "pending_analysis"
	ActionStatusCollecting      ActionStatus = "collecting_parameters"
	ActionStatusReady           ActionStatus = "ready"
	ActionStatusExecuting       ActionStatus = "executing"
	ActionStatusCompleted       ActionStatus = "completed"
	ActionStatusFailed          ActionStatus = "failed"
)

// ParameterState is one entry of an action's parameter list, combining the
// declared schema of the parameter with the value collected so far.
type ParameterState struct {
	Name         string
	Description  string
	Required     bool
	Type         ParameterType
	CurrentValue any
}

// Action is a proposed tool call awaiting parameter completeness before
// execution. It is mutated only through the tracker's transition operations.
type Action struct {
	ID          string
	ToolName    string
	Description string

	Parameters        []ParameterState
	MissingParameters []string
	Status            ActionStatus

	Result map[string]any
	Error  error

	args map[string]any
	spec *ToolSpec
}

// ActionTracker owns the actions of one session and drives their state
// machine. A tracker is confined to a single session; independent sessions
// each own an independent tracker.
type ActionTracker struct {
	mu sync.Mutex

	sessionID string
	schemas   SchemaProvider
	rules     *RuleSet
	invoker   Invoker
	sink      Sink

	actions   map[string]*Action
	lastReady string
}

// NewActionTracker creates a tracker for one session.
func NewActionTracker(sessionID string, schemas SchemaProvider, rules *RuleSet, invoker Invoker, sink Sink) *ActionTracker {
	if sink == nil {
		sink = discardSink{}
	}
	return &ActionTracker{
		sessionID: sessionID,
		schemas:   schemas,
		rules:     rules,
		invoker:   invoker,
		sink:      sink,
		actions:   map[string]*Action{},
	}
}

// Propose registers a reconstructed tool call as a new action and analyzes it
// for completeness. The action ends up ready or collecting_parameters.
func (t *ActionTracker) Propose(ctx context.Context, call *FunctionCall, description string) (*Action, error) {
	spec, err := t.schemas.ToolSpec(ctx, call.Name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get tool spec for action", goerr.V("tool_name", call.Name))
	}

	id := call.ID
	if id == "" {
		id = uuid.New().String()
	}

	args := map[string]any{}
	for k, v := range call.Arguments {
		args[k] = v
	}

	action := &Action{
		ID:          id,
		ToolName:    call.Name,
		Description: description,
		Parameters:  parameterStates(spec, args),
		Status:      ActionStatusPendingAnalysis,
		args:        args,
		spec:        spec,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[id] = action

	t.emit(ctx, EventActionCreated, action, "")
	t.analyze(ctx, action)

	return action, nil
}

// Get returns an action by its identifier.
func (t *ActionTracker) Get(actionID string) (*Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	action, ok := t.actions[actionID]
	return action, ok
}

// UpdateParameter applies an update_parameter control event: it sets the
// value, removes the name from the missing list if now satisfied, and
// re-evaluates all required parameters.
func (t *ActionTracker) UpdateParameter(ctx context.Context, actionID, paramName string, value any) (*Action, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.actions[actionID]
	if !ok {
		return nil, goerr.Wrap(ErrActionNotFound, "cannot update parameter", goerr.V("action_id", actionID))
	}

	if action.Status != ActionStatusCollecting && action.Status != ActionStatusReady {
		return nil, goerr.Wrap(ErrActionNotReady, "action does not accept parameter updates",
			goerr.V("action_id", actionID), goerr.V("status", action.Status))
	}

	known := false
	if _, ok := action.spec.Parameters[paramName]; ok {
		known = true
	}
	if !known {
		for _, missing := range action.MissingParameters {
			if missing == paramName {
				known = true
				break
			}
		}
	}
	if !known {
		return nil, goerr.Wrap(ErrUnknownParameter, "parameter is not declared by the tool",
			goerr.V("action_id", actionID), goerr.V("param_name", paramName))
	}

	action.args[paramName] = value
	for i := range action.Parameters {
		if action.Parameters[i].Name == paramName {
			action.Parameters[i].CurrentValue = value
		}
	}

	t.analyze(ctx, action)

	return action, nil
}

// Execute applies an execute control event. The single-action confirmation
// discipline applies: the call is a no-op unless the supplied id matches the
// last-presented ready action. The returned bool reports whether the event
// was accepted.
func (t *ActionTracker) Execute(ctx context.Context, actionID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.actions[actionID]
	if !ok || action.Status != ActionStatusReady || actionID != t.lastReady {
		return false, nil
	}

	action.Status = ActionStatusExecuting
	t.emit(ctx, EventActionExecuting, action, "")

	result, err := t.invoker.Invoke(ctx, action.ToolName, action.args)
	if err != nil {
		action.Status = ActionStatusFailed
		action.Error = err
		t.emit(ctx, EventActionFailed, action, err.Error())
		return true, goerr.Wrap(err, "action execution failed",
			goerr.V("action_id", actionID), goerr.V("tool_name", action.ToolName))
	}

	action.Status = ActionStatusCompleted
	action.Result = result
	t.emit(ctx, EventActionCompleted, action, "")

	return true, nil
}

// analyze re-evaluates required parameters and moves the action to ready or
// collecting_parameters. Caller holds the lock.
func (t *ActionTracker) analyze(ctx context.Context, action *Action) {
	missing := missingParameters(action.spec, action.args)

	for _, suggested := range t.rules.Evaluate(action.ToolName, action.args) {
		if _, ok := action.args[suggested]; ok {
			continue
		}
		if !slices.Contains(missing, suggested) {
			missing = append(missing, suggested)
		}
	}

	action.MissingParameters = missing

	if len(missing) == 0 {
		action.Status = ActionStatusReady
		t.lastReady = action.ID
		t.emit(ctx, EventActionReady, action, "")
		return
	}

	action.Status = ActionStatusCollecting
	t.emit(ctx, EventParameterPrompt, action, missing[0])
}

func (t *ActionTracker) emit(ctx context.Context, evType EventType, action *Action, message string) {
	ev := Event{
		Type:      evType,
		SessionID: t.sessionID,
		ActionID:  action.ID,
		Message:   message,
		Data: map[string]any{
			"tool_name":          action.ToolName,
			"status":             string(action.Status),
			"missing_parameters": append([]string(nil), action.MissingParameters...),
		},
		Time: time.Now(),
	}

	if err := t.sink.Push(ctx, ev); err != nil {
		LoggerFromContext(ctx).Warn("failed to push action event",
			"event_type", evType, "action_id", action.ID, "error", err)
	}
}

// parameterStates builds the full ordered parameter list of an action:
// required parameters first, in declared order, then the remaining ones in
// name order.
func parameterStates(spec *ToolSpec, args map[string]any) []ParameterState {
	states := make([]ParameterState, 0, len(spec.Parameters))
	seen := map[string]bool{}

	appendState := func(name string, required bool) {
		param, ok := spec.Parameters[name]
		if !ok || seen[name] {
			return
		}
		seen[name] = true
		states = append(states, ParameterState{
			Name:         name,
			Description:  param.Description,
			Required:     required,
			Type:         param.Type,
			CurrentValue: args[name],
		})
	}

	for _, name := range spec.Required {
		appendState(name, true)
	}

	rest := make([]string, 0, len(spec.Parameters))
	for name := range spec.Parameters {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		appendState(name, false)
	}

	return states
}

// missingParameters returns the required parameter names that are absent,
// empty or type-invalid, ordered as the schema declares them.
func missingParameters(spec *ToolSpec, args map[string]any) []string {
	var missing []string

	for _, name := range spec.Required {
		param, ok := spec.Parameters[name]
		if !ok {
			continue
		}

		value, ok := args[name]
		if !ok || value == nil {
			missing = append(missing, name)
			continue
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			missing = append(missing, name)
			continue
		}
		if err := validateParameterValue(name, param, value); err != nil {
			missing = append(missing, name)
		}
	}

	return missing
}
