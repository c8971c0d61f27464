package conductor

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Fragment is one partial piece of a tool call delivered incrementally by a
// token-streaming completion service. Fragments are tagged with the positional
// index of the call they belong to and may arrive in any index order.
type Fragment struct {
	Index          int
	ID             string
	Name           string
	ArgumentsChunk string
	Type           string
}

type partialCall struct {
	id        string
	name      string
	arguments string
	callType  string
}

// ToolCallAccumulator folds a stream of fragments into an index-addressed
// sequence of partial tool calls. One accumulator owns exactly one stream;
// independent streams never share an instance.
type ToolCallAccumulator struct {
	calls []partialCall
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{}
}

// Add merges one fragment. On first sight of a new index all intervening
// indices are pre-allocated blank, so a later index arriving before an earlier
// one within the same stream is tolerated. Name and argument chunks are
// concatenated onto the existing accumulators; ID and Type are set once.
func (a *ToolCallAccumulator) Add(f Fragment) {
	if f.Index < 0 {
		return
	}

	for len(a.calls) <= f.Index {
		a.calls = append(a.calls, partialCall{})
	}

	call := &a.calls[f.Index]
	if f.ID != "" && call.id == "" {
		call.id = f.ID
	}
	if f.Type != "" && call.callType == "" {
		call.callType = f.Type
	}
	call.name += f.Name
	call.arguments += f.ArgumentsChunk
}

// Len returns the number of calls seen so far, complete or not.
func (a *ToolCallAccumulator) Len() int {
	return len(a.calls)
}

// Finalize parses each accumulated record into a complete FunctionCall. A
// record whose arguments fail to parse is isolated: it is reported as an error
// carrying that record's ID and does not block delivery of the valid calls.
func (a *ToolCallAccumulator) Finalize() ([]*FunctionCall, []error) {
	var calls []*FunctionCall
	var errs []error

	for i, call := range a.calls {
		// A pre-allocated slot that never received content (e.g. a text block
		// occupying that index) is not a call.
		if call.id == "" && call.name == "" && call.arguments == "" {
			continue
		}

		args := map[string]any{}
		if call.arguments != "" {
			if err := json.Unmarshal([]byte(call.arguments), &args); err != nil {
				errs = append(errs, goerr.Wrap(ErrBrokenToolCall, "failed to parse tool call arguments",
					goerr.V("call_id", call.id),
					goerr.V("tool_name", call.name),
					goerr.V("index", i)))
				continue
			}
		}

		calls = append(calls, &FunctionCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: args,
		})
	}

	return calls, errs
}
