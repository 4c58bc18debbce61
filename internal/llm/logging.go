package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oslerlabs/simcore/internal/store"
)

// LoggingProvider is a decorator that records every LLM request as an event.
type LoggingProvider struct {
	inner  Provider
	events store.LLMEventRecorder
	log    *slog.Logger
}

// WithLogging wraps a Provider with event recording. A nil logger falls
// back to slog.Default.
func WithLogging(p Provider, events store.LLMEventRecorder, log *slog.Logger) Provider {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingProvider{inner: p, events: events, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	l.record(ctx, req, resp, err, time.Since(start), false)
	return resp, err
}

func (l *LoggingProvider) GenerateStream(ctx context.Context, req Request, fn StreamFunc) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.GenerateStream(ctx, req, fn)
	l.record(ctx, req, resp, err, time.Since(start), true)
	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

func (l *LoggingProvider) record(ctx context.Context, req Request, resp *Response, err error, elapsed time.Duration, streamed bool) {
	ev := store.LLMEvent{
		Provider:    l.inner.ModelID(),
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		Streamed:    streamed,
		LatencyMs:   elapsed.Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}

	if resp != nil {
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.Model = resp.Model
		ev.ResponseBody = string(resp.Content)
		if cost, ok := EstimateCost(resp.Model, resp.Usage); ok {
			ev.CostUSD = cost
		}
	}

	if err != nil {
		ev.ErrorMessage = err.Error()
	}

	// Recording is best effort; a failed write never fails the request.
	if recErr := l.events.RecordLLMEvent(ctx, ev); recErr != nil {
		l.log.Warn("llm event record failed", "error", recErr, "purpose", ev.Purpose)
	}
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		b.WriteString(fmt.Sprintf("[%s]\n", m.Role))
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			b.WriteString(fmt.Sprintf("[schema: %s]\n", req.Schema.Name))
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	}

	return b.String()
}
