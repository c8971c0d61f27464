// Package openai adapts OpenAI chat completion streams into tool-call
// fragments for reconstruction.
package openai

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/m-mizutani/conductor"
)

// chatStream is the interface for the streaming API calls (unexported for
// encapsulation)
type chatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
}

// TextHandler receives text deltas as they arrive.
type TextHandler func(ctx context.Context, text string) error

// Source consumes one chat completion stream and reconstructs the tool calls
// it carries. Fragments are keyed by the delta's positional index, so chunks
// belonging to different calls may interleave freely.
type Source struct {
	onText TextHandler
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
	s := &Source{}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Stream opens a chat completion stream on the given client and collects it.
func (s *Source) Stream(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) ([]*conductor.FunctionCall, []error, error) {
	req.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create chat completion stream")
	}
	defer stream.Close()

	return s.Collect(ctx, stream)
}

// Collect drains the stream, forwarding text deltas to the handler and folding
// tool-call deltas into an accumulator. It returns the reconstructed calls
// plus per-call parse errors once the stream ends.
func (s *Source) Collect(ctx context.Context, stream chatStream) ([]*conductor.FunctionCall, []error, error) {
	acc := conductor.NewToolCallAccumulator()

	for {
		select {
		case <-ctx.Done():
			return nil, nil, goerr.Wrap(ctx.Err(), "context cancelled during streaming")
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, goerr.Wrap(err, "failed to receive chat completion stream")
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" && s.onText != nil {
			if err := s.onText(ctx, choice.Delta.Content); err != nil {
				return nil, nil, goerr.Wrap(err, "text handler failed")
			}
		}

		for _, toolCall := range choice.Delta.ToolCalls {
			// Index is nil on non-streaming responses; default to 0
			index := 0
			if toolCall.Index != nil {
				index = *toolCall.Index
			}

			acc.Add(conductor.Fragment{
				Index:          index,
				ID:             toolCall.ID,
				Name:           toolCall.Function.Name,
				ArgumentsChunk: toolCall.Function.Arguments,
				Type:           string(toolCall.Type),
			})
		}

		if choice.FinishReason == openai.FinishReasonToolCalls || choice.FinishReason == openai.FinishReasonStop {
			break
		}
	}

	calls, errs := acc.Finalize()
	return calls, errs, nil
}
