package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// TokenStream is a finite, non-restartable sequence of text fragments
// produced by one backend streaming request. Iterate with Next, read
// the fragment with Current, then check Err once Next returns false.
type TokenStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Streamer opens a token stream for a prompt. Connection failures are
// reported through the stream itself: Next returns false before any
// fragment and Err is non-nil.
type Streamer interface {
	Stream(ctx context.Context, prompt []PromptMessage) TokenStream
}

// chunkStream is the subset of the openai-go SSE stream the adapter
// consumes; *ssestream.Stream[openai.ChatCompletionChunk] satisfies it.
type chunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

var _ chunkStream = (*ssestream.Stream[openai.ChatCompletionChunk])(nil)

// OpenAIStreamer drives chat-completions streaming against any
// OpenAI-compatible backend.
type OpenAIStreamer struct {
	client *openai.Client
	cfg    Config
}

func NewOpenAIStreamer(client *openai.Client, cfg Config) *OpenAIStreamer {
	return &OpenAIStreamer{client: client, cfg: cfg}
}

func (s *OpenAIStreamer) Stream(ctx context.Context, prompt []PromptMessage) TokenStream {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F([]openai.ChatCompletionMessageParamUnion{}),
		Model:       openai.F(s.cfg.Model),
		Temperature: openai.F(s.cfg.Temperature),
	}
	for _, message := range prompt {
		var content any = message.Content
		params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
			Role:    openai.F(openai.ChatCompletionMessageParamRole(message.Role)),
			Content: openai.F(content),
		})
	}

	streamCtx, cancel := context.WithCancel(ctx)
	inner := s.client.Chat.Completions.NewStreaming(streamCtx, params)
	return newTokenStream(streamCtx, cancel, inner, s.cfg.StreamTimeout)
}

// tokenStream pumps backend chunks on a goroutine and hands the textual
// deltas to the consumer one Next call at a time. Control-only chunks
// are filtered out. Each fragment wait, including the wait for the
// first one, is bounded by the configured timeout.
type tokenStream struct {
	fragments chan string
	cancel    context.CancelFunc
	timeout   time.Duration

	current   string
	err       error
	streamErr error // written by the pump before fragments is closed
}

func newTokenStream(ctx context.Context, cancel context.CancelFunc, src chunkStream, timeout time.Duration) *tokenStream {
	ts := &tokenStream{
		fragments: make(chan string),
		cancel:    cancel,
		timeout:   timeout,
	}

	go func() {
		defer close(ts.fragments)
		defer src.Close()
		for src.Next() {
			chunk := src.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case ts.fragments <- delta:
			case <-ctx.Done():
				return
			}
		}
		ts.streamErr = src.Err()
	}()

	return ts
}

func (ts *tokenStream) Next() bool {
	if ts.err != nil {
		return false
	}

	timer := time.NewTimer(ts.timeout)
	defer timer.Stop()

	select {
	case fragment, ok := <-ts.fragments:
		if !ok {
			ts.err = ts.streamErr
			return false
		}
		ts.current = fragment
		return true
	case <-timer.C:
		ts.cancel()
		ts.err = fmt.Errorf("no fragment within %s", ts.timeout)
		return false
	}
}

func (ts *tokenStream) Current() string {
	return ts.current
}

func (ts *tokenStream) Err() error {
	return ts.err
}

// Close cancels the backend request. Safe to call at any point; the
// pump goroutine exits on cancellation.
func (ts *tokenStream) Close() error {
	ts.cancel()
	return nil
}
