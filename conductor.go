package conductor

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// DefaultIdleTimeout is how long an inactive run survives before the
	// garbage collector releases its dependency scope.
	DefaultIdleTimeout = 30 * time.Minute
)

// Coordinator is the core structure of the package. It wires the dependency
// store, placeholder resolver, action tracker and plan executor together for
// any number of concurrent sessions.
type Coordinator struct {
	coordinatorConfig

	store    *Store
	resolver *Resolver
	runs     *RunRegistry
}

type coordinatorConfig struct {
	logger  *slog.Logger
	invoker Invoker
	schemas SchemaProvider
	sink    Sink
	rules   *RuleSet

	continueOnError bool
	idleTimeout     time.Duration

	stepStartHook  StepStartHook
	stepResultHook StepResultHook
	planDoneHook   PlanDoneHook
}

func (c *coordinatorConfig) Clone() *coordinatorConfig {
	clone := *c
	return &clone
}

// Hook types for monitoring plan lifecycle.
type (
	// StepStartHook is called just before a step is dispatched, with its
	// already-resolved arguments.
	StepStartHook func(ctx context.Context, plan *Plan, step *Step, args map[string]any) error

	// StepResultHook is called after a step reached its terminal state and
	// before the result is saved. Collaborators may attach enrichments
	// (summary, extracted values, attachments, logs) or write plan tags.
	StepResultHook func(ctx context.Context, plan *Plan, step *Step, result *StepResult) error

	// PlanDoneHook is called once the whole plan reached a terminal state.
	PlanDoneHook func(ctx context.Context, plan *Plan) error
)

// New creates a coordinator. An Invoker and a SchemaProvider are required for
// execution; everything else has a default.
func New(invoker Invoker, schemas SchemaProvider, options ...Option) (*Coordinator, error) {
	rules, err := NewRuleSet(DefaultReadinessRules()...)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		coordinatorConfig: coordinatorConfig{
			logger:      slog.New(slog.DiscardHandler),
			invoker:     invoker,
			schemas:     schemas,
			sink:        discardSink{},
			rules:       rules,
			idleTimeout: DefaultIdleTimeout,
		},
		store: NewStore(),
	}

	for _, opt := range options {
		opt(&c.coordinatorConfig)
	}

	c.resolver = NewResolver(c.store)
	c.runs = newRunRegistry(c.store, c.idleTimeout, c.logger)

	c.logger.Info("conductor coordinator created",
		"continue_on_error", c.continueOnError,
		"idle_timeout", c.idleTimeout,
		"has_sink", c.sink != nil,
	)

	return c, nil
}

// Option is the type for the options of the coordinator.
type Option func(*coordinatorConfig)

// WithLogger sets the logger. Default is a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *coordinatorConfig) {
		c.logger = logger
	}
}

// WithSink sets the session output sink for progress, prompts and results.
func WithSink(sink Sink) Option {
	return func(c *coordinatorConfig) {
		c.sink = sink
	}
}

// WithContinueOnError switches the failure policy of the plan executor from
// fail-fast (default) to best-effort continuation.
func WithContinueOnError(continueOnError bool) Option {
	return func(c *coordinatorConfig) {
		c.continueOnError = continueOnError
	}
}

// WithIdleTimeout sets how long an inactive run is kept before its dependency
// scope is released.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *coordinatorConfig) {
		c.idleTimeout = d
	}
}

// WithReadinessRules replaces the built-in conditional readiness rules.
func WithReadinessRules(rules *RuleSet) Option {
	return func(c *coordinatorConfig) {
		c.rules = rules
	}
}

// WithStepStartHook sets a callback invoked before each step dispatch.
func WithStepStartHook(hook StepStartHook) Option {
	return func(c *coordinatorConfig) {
		c.stepStartHook = hook
	}
}

// WithStepResultHook sets a callback invoked after each step completes.
func WithStepResultHook(hook StepResultHook) Option {
	return func(c *coordinatorConfig) {
		c.stepResultHook = hook
	}
}

// WithPlanDoneHook sets a callback invoked when a plan reaches a terminal
// state.
func WithPlanDoneHook(hook PlanDoneHook) Option {
	return func(c *coordinatorConfig) {
		c.planDoneHook = hook
	}
}

// Store returns the coordinator's dependency store.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Resolver returns the coordinator's placeholder resolver.
func (c *Coordinator) Resolver() *Resolver {
	return c.resolver
}

// Runs returns the run registry.
func (c *Coordinator) Runs() *RunRegistry {
	return c.runs
}

// NewActionTracker creates an action tracker bound to one session, sharing
// the coordinator's schema provider, rules, invoker and sink.
func (c *Coordinator) NewActionTracker(sessionID string) *ActionTracker {
	return NewActionTracker(sessionID, c.schemas, c.rules, c.invoker, c.sink)
}

// HandleControl routes a client control message to the session's tracker.
func (c *Coordinator) HandleControl(ctx context.Context, tracker *ActionTracker, msg ControlMessage) error {
	logger := LoggerFromContext(ctx)

	switch msg.Type {
	case ControlUpdateParameter:
		if msg.ActionID == "" || msg.ParamName == "" {
			return goerr.Wrap(ErrInvalidControlMsg, "update_parameter requires actionId and paramName")
		}
		_, err := tracker.UpdateParameter(ctx, msg.ActionID, msg.ParamName, msg.Value)
		return err

	case ControlExecute:
		if msg.ActionID == "" {
			return goerr.Wrap(ErrInvalidControlMsg, "execute requires actionId")
		}
		accepted, err := tracker.Execute(ctx, msg.ActionID)
		if !accepted {
			logger.Debug("execute control ignored", "action_id", msg.ActionID)
		}
		return err

	default:
		return goerr.Wrap(ErrInvalidControlMsg, "unknown control type", goerr.V("type", msg.Type))
	}
}
