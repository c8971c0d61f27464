package conductor

import (
	"context"
	"time"
)

// EventType identifies a progress event relayed to the session output stream.
type EventType string

const (
	EventActionCreated   EventType = "action_created"
	EventParameterPrompt EventType = "parameter_prompt"
	EventActionReady     EventType = "action_ready"
	EventActionExecuting EventType = "action_executing"
	EventActionCompleted EventType = "action_completed"
	EventActionFailed    EventType = "action_failed"

	EventPlanStarted   EventType = "plan_started"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventPlanCompleted EventType = "plan_completed"
)

// Event is a progress, prompt or result notification for a session. Clients
// render the current prompt or confirmation request from these.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	PlanID    string         `json:"plan_id,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
	ActionID  string         `json:"action_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// Sink is a push channel the executor and state machine write progress,
// prompts and results to, keyed by session identifier.
type Sink interface {
	Push(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Push(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

type discardSink struct{}

func (discardSink) Push(ctx context.Context, ev Event) error {
	return nil
}

// ControlType identifies a client control message.
type ControlType string

const (
	ControlUpdateParameter ControlType = "update_parameter"
	ControlExecute         ControlType = "execute"
)

// ControlMessage is a client-originated command consumed by the coordinator.
type ControlMessage struct {
	Type      ControlType `json:"type"`
	ActionID  string      `json:"actionId"`
	ParamName string      `json:"paramName,omitempty"`
	Value     any         `json:"value,omitempty"`
}
