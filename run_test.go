package conductor_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/conductor"
)

func TestRunRegistry(t *testing.T) {
	invoker := &recordInvoker{
		outputs: map[string]map[string]any{"fetch": {"id": "T-1"}},
	}
	coordinator := newTestCoordinator(t, invoker)
	registry := coordinator.Runs()

	plan := coordinator.NewPlan("session-1", "user-1", "fetch the ticket", []conductor.Step{
		{ID: "s1", ToolName: "fetch", Arguments: map[string]any{"id": "T-1"}},
	})

	run := registry.Register(plan)
	gt.Equal(t, run.ID, plan.ID())
	gt.Equal(t, run.SessionID, "session-1")
	gt.Equal(t, registry.Len(), 1)

	ctx := registry.Bind(context.Background(), run)
	gt.NoError(t, plan.Execute(ctx))

	t.Run("lookup", func(t *testing.T) {
		got, ok := registry.Get(run.ID)
		gt.True(t, ok)
		gt.Equal(t, got.ID, run.ID)

		_, ok = registry.Get("no-such-run")
		gt.False(t, ok)
	})

	t.Run("closing the session releases the scope", func(t *testing.T) {
		_, ok := coordinator.Store().StepResult(plan.ID(), "s1")
		gt.True(t, ok)

		registry.CloseSession("session-1")
		gt.Equal(t, registry.Len(), 0)

		_, ok = coordinator.Store().StepResult(plan.ID(), "s1")
		gt.False(t, ok)

		// The bound context is cancelled
		gt.Error(t, ctx.Err())
	})
}

func TestRunRegistryCloseSessionScoping(t *testing.T) {
	invoker := &recordInvoker{}
	coordinator := newTestCoordinator(t, invoker)
	registry := coordinator.Runs()

	planA := coordinator.NewPlan("session-A", "", "", []conductor.Step{{ID: "s1", ToolName: "fetch"}})
	planB := coordinator.NewPlan("session-B", "", "", []conductor.Step{{ID: "s1", ToolName: "fetch"}})
	registry.Register(planA)
	registry.Register(planB)

	registry.CloseSession("session-A")

	_, ok := registry.Get(planA.ID())
	gt.False(t, ok)
	_, ok = registry.Get(planB.ID())
	gt.True(t, ok)
}

func TestRunRegistryDiscard(t *testing.T) {
	invoker := &recordInvoker{}
	coordinator := newTestCoordinator(t, invoker)
	registry := coordinator.Runs()

	plan := coordinator.NewPlan("session-1", "", "", []conductor.Step{{ID: "s1", ToolName: "fetch"}})
	run := registry.Register(plan)

	registry.Discard(run.ID)
	gt.Equal(t, registry.Len(), 0)

	// Discarding twice is harmless
	registry.Discard(run.ID)
}
