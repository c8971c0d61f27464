package conductor_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/conductor"
)

func TestToolCallAccumulator(t *testing.T) {
	t.Run("single call split across chunks", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: 0, ID: "call_1", Name: "search", Type: "function"})
		acc.Add(conductor.Fragment{Index: 0, ArgumentsChunk: `{"query":`})
		acc.Add(conductor.Fragment{Index: 0, ArgumentsChunk: `"golang"}`})

		calls, errs := acc.Finalize()
		gt.A(t, errs).Length(0)
		gt.A(t, calls).Length(1)
		gt.Equal(t, calls[0].ID, "call_1")
		gt.Equal(t, calls[0].Name, "search")
		gt.Equal(t, calls[0].Arguments["query"], "golang")
	})

	t.Run("name split across chunks", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: 0, ID: "call_1", Name: "sea"})
		acc.Add(conductor.Fragment{Index: 0, Name: "rch"})

		calls, errs := acc.Finalize()
		gt.A(t, errs).Length(0)
		gt.A(t, calls).Length(1)
		gt.Equal(t, calls[0].Name, "search")
	})

	t.Run("interleaved indices", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: 1, ID: "call_b", Name: "update"})
		acc.Add(conductor.Fragment{Index: 0, ID: "call_a", Name: "fetch"})
		acc.Add(conductor.Fragment{Index: 1, ArgumentsChunk: `{"id":"b"}`})
		acc.Add(conductor.Fragment{Index: 0, ArgumentsChunk: `{"id":"a"}`})

		calls, errs := acc.Finalize()
		gt.A(t, errs).Length(0)
		gt.A(t, calls).Length(2)
		gt.Equal(t, calls[0].ID, "call_a")
		gt.Equal(t, calls[0].Arguments["id"], "a")
		gt.Equal(t, calls[1].ID, "call_b")
		gt.Equal(t, calls[1].Arguments["id"], "b")
	})

	t.Run("empty arguments become empty map", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: 0, ID: "call_1", Name: "ping"})

		calls, errs := acc.Finalize()
		gt.A(t, errs).Length(0)
		gt.A(t, calls).Length(1)
		gt.NotNil(t, calls[0].Arguments)
		gt.Equal(t, len(calls[0].Arguments), 0)
	})

	t.Run("broken call is isolated", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: 0, ID: "call_ok", Name: "fetch", ArgumentsChunk: `{"id":"a"}`})
		acc.Add(conductor.Fragment{Index: 1, ID: "call_bad", Name: "update", ArgumentsChunk: `{"id":`})
		acc.Add(conductor.Fragment{Index: 2, ID: "call_ok2", Name: "notify", ArgumentsChunk: `{}`})

		calls, errs := acc.Finalize()
		gt.A(t, errs).Length(1)
		gt.True(t, errors.Is(errs[0], conductor.ErrBrokenToolCall))

		gt.A(t, calls).Length(2)
		gt.Equal(t, calls[0].ID, "call_ok")
		gt.Equal(t, calls[1].ID, "call_ok2")
	})

	t.Run("negative index ignored", func(t *testing.T) {
		acc := conductor.NewToolCallAccumulator()
		acc.Add(conductor.Fragment{Index: -1, ID: "ghost", Name: "x"})
		gt.Equal(t, acc.Len(), 0)
	})
}
