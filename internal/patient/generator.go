// Package patient drives the virtual patient's streamed replies. One
// provider call per clinician question; increments are relayed to the
// caller's sink as the model produces them, within the lifetime of the
// originating request.
package patient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/store"
)

// EventKind discriminates stream events.
type EventKind string

const (
	// EventChunk carries one content increment.
	EventChunk EventKind = "chunk"

	// EventError carries the single error notice emitted when the
	// backend fails mid-stream.
	EventError EventKind = "error"

	// EventDone is the terminal signal. SessionShouldEnd is set when
	// the question matched an end trigger.
	EventDone EventKind = "done"
)

// Event is one item on the reply stream.
type Event struct {
	Kind             EventKind `json:"kind"`
	Content          string    `json:"content,omitempty"`
	SessionShouldEnd bool      `json:"session_should_end,omitempty"`
}

// Sink receives stream events. A Send error means the transport closed;
// the generator stops producing immediately.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

func (f SinkFunc) Send(ev Event) error { return f(ev) }

// ReplyResult is the outcome of one streamed reply.
type ReplyResult struct {
	// Text is the accumulated full reply, to be appended as a Patient
	// transcript entry by the caller.
	Text string

	// SessionShouldEnd mirrors the willEnd input: the terminal signal
	// was emitted and the controller should mark the session end-pending.
	SessionShouldEnd bool
}

// Config bounds a single reply generation.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults for patient replies.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// Generator produces streamed patient replies.
type Generator struct {
	provider llm.Provider
	cfg      Config
	log      *slog.Logger
}

// NewGenerator creates a Generator. A nil logger falls back to
// slog.Default.
func NewGenerator(provider llm.Provider, cfg Config, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{provider: provider, cfg: cfg, log: log}
}

// ErrGeneration wraps a backend failure after the single error notice
// has been emitted on the stream.
type ErrGeneration struct {
	Err error
}

func (e *ErrGeneration) Error() string {
	return fmt.Sprintf("patient reply generation failed: %v", e.Err)
}

func (e *ErrGeneration) Unwrap() error { return e.Err }

// Reply issues one streaming generation call and relays increments to
// sink. On success the accumulated text is returned for the caller to
// append to the transcript; when willEnd is set, one terminal signal is
// emitted after the last increment.
//
// On a backend fault, exactly one error notice is sent and *ErrGeneration
// is returned; there is no retry. If the sink is closed mid-stream the
// increments stop immediately and *llm.ErrStreamAborted is returned.
func (g *Generator) Reply(ctx context.Context, c *simcase.Case, transcript []store.TranscriptEntry, question string, willEnd bool, sink Sink) (*ReplyResult, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposePatientReply)

	req := llm.Request{
		System:      buildPersonaPrompt(c),
		Messages:    buildDialogue(transcript, question),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	resp, err := g.provider.GenerateStream(ctx, req, func(delta string) error {
		return sink.Send(Event{Kind: EventChunk, Content: delta})
	})
	if err != nil {
		var aborted *llm.ErrStreamAborted
		if errors.As(err, &aborted) {
			// The transport closed the sink; there is nobody left to
			// notify, so no error notice is emitted.
			return nil, err
		}
		if sendErr := sink.Send(Event{Kind: EventError, Content: "The patient is unable to respond right now. Please try again."}); sendErr != nil {
			g.log.Warn("error notice dropped, sink closed", "error", sendErr)
		}
		return nil, &ErrGeneration{Err: err}
	}

	if willEnd {
		if err := sink.Send(Event{Kind: EventDone, SessionShouldEnd: true}); err != nil {
			return nil, &llm.ErrStreamAborted{Err: err}
		}
	}

	return &ReplyResult{
		Text:             resp.Text(),
		SessionShouldEnd: willEnd,
	}, nil
}
