// Package claude adapts Anthropic message streams into tool-call fragments
// for reconstruction.
package claude

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/conductor"
)

// TextHandler receives text deltas as they arrive.
type TextHandler func(ctx context.Context, text string) error

// Source consumes one Anthropic message stream and reconstructs the tool
// calls it carries. Content block events carry an explicit index, which keys
// the fragments.
type Source struct {
	onText TextHandler
	acc    *conductor.ToolCallAccumulator
}

// Option is the type for the options of Source.
type Option func(*Source)

// WithTextHandler sets a callback for streamed text content.
func WithTextHandler(handler TextHandler) Option {
	return func(s *Source) {
		s.onText = handler
	}
}

// New creates a stream source.
func New(options ...Option) *Source {
	s := &Source{
		acc: conductor.NewToolCallAccumulator(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Apply folds one stream event into the source. Unknown event types are
// ignored.
func (s *Source) Apply(ctx context.Context, event anthropic.MessageStreamEventUnion) error {
	switch event.Type {
	case "content_block_start":
		startEvent := event.AsContentBlockStartEvent()
		if startEvent.ContentBlock.Type == "tool_use" {
			toolUseBlock := startEvent.ContentBlock.AsResponseToolUseBlock()
			s.acc.Add(conductor.Fragment{
				Index: int(startEvent.Index),
				ID:    toolUseBlock.ID,
				Name:  toolUseBlock.Name,
				Type:  "tool_use",
			})
		}

	case "content_block_delta":
		deltaEvent := event.AsContentBlockDeltaEvent()
		switch deltaEvent.Delta.Type {
		case "text_delta":
			textDelta := deltaEvent.Delta.AsTextContentBlockDelta()
			if textDelta.Text != "" && s.onText != nil {
				if err := s.onText(ctx, textDelta.Text); err != nil {
					return goerr.Wrap(err, "text handler failed")
				}
			}
		case "input_json_delta":
			jsonDelta := deltaEvent.Delta.AsInputJSONContentBlockDelta()
			if jsonDelta.PartialJSON != "" {
				s.acc.Add(conductor.Fragment{
					Index:          int(deltaEvent.Index),
					ArgumentsChunk: jsonDelta.PartialJSON,
				})
			}
		}
	}

	return nil
}

// Collect drains the stream via Apply and finalizes the accumulated calls.
func (s *Source) Collect(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) ([]*conductor.FunctionCall, []error, error) {
	if stream == nil {
		return nil, nil, goerr.New("failed to create message stream")
	}

	for stream.Next() {
		select {
		case <-ctx.Done():
			return nil, nil, goerr.Wrap(ctx.Err(), "context cancelled during streaming")
		default:
		}

		if err := s.Apply(ctx, stream.Current()); err != nil {
			return nil, nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to receive message stream")
	}

	return s.Finalize()
}

// Finalize parses the accumulated records into complete calls.
func (s *Source) Finalize() ([]*conductor.FunctionCall, []error, error) {
	calls, errs := s.acc.Finalize()
	return calls, errs, nil
}
