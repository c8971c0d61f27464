package conductor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/conductor"
)

func TestHandleControl(t *testing.T) {
	ctx := context.Background()
	invoker := conductor.InvokerFunc(func(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
		return map[string]any{"done": true}, nil
	})
	coordinator := newTestCoordinator(t, invoker)
	tracker := coordinator.NewActionTracker("session-1")

	action := gt.R1(tracker.Propose(ctx, &conductor.FunctionCall{
		ID: "call_1", Name: "update",
		Arguments: map[string]any{"id": "T-1"},
	}, "")).NoError(t)
	gt.Equal(t, action.Status, conductor.ActionStatusCollecting)

	t.Run("update_parameter", func(t *testing.T) {
		gt.NoError(t, coordinator.HandleControl(ctx, tracker, conductor.ControlMessage{
			Type:      conductor.ControlUpdateParameter,
			ActionID:  action.ID,
			ParamName: "title",
			Value:     "new title",
		}))
		gt.Equal(t, action.Status, conductor.ActionStatusReady)
	})

	t.Run("execute", func(t *testing.T) {
		gt.NoError(t, coordinator.HandleControl(ctx, tracker, conductor.ControlMessage{
			Type:     conductor.ControlExecute,
			ActionID: action.ID,
		}))
		gt.Equal(t, action.Status, conductor.ActionStatusCompleted)
	})

	t.Run("malformed messages", func(t *testing.T) {
		err := coordinator.HandleControl(ctx, tracker, conductor.ControlMessage{
			Type: conductor.ControlUpdateParameter,
		})
		gt.True(t, errors.Is(err, conductor.ErrInvalidControlMsg))

		err = coordinator.HandleControl(ctx, tracker, conductor.ControlMessage{
			Type: conductor.ControlExecute,
		})
		gt.True(t, errors.Is(err, conductor.ErrInvalidControlMsg))

		err = coordinator.HandleControl(ctx, tracker, conductor.ControlMessage{
			Type: "reboot",
		})
		gt.True(t, errors.Is(err, conductor.ErrInvalidControlMsg))
	})
}
