package evaluation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/metrics"
	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/store"
)

// Config bounds a single evaluation call.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults for evaluations.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// Engine produces the end-of-session evaluation.
type Engine struct {
	provider llm.Provider
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewEngine creates an evaluation engine. A nil logger falls back to
// slog.Default; metrics may be nil.
func NewEngine(provider llm.Provider, cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{provider: provider, cfg: cfg, log: log, metrics: m}
}

// Evaluate scores a finished transcript. The nursing rubric is selected
// when the case carries nursing-diagnosis data, the generic five-criterion
// rubric otherwise. On backend failure the fixed fallback result is
// returned instead of an error: termination must always succeed once
// reached, and the fallback is shaped identically to a real evaluation.
func (e *Engine) Evaluate(ctx context.Context, c *simcase.Case, transcript []store.TranscriptEntry) *Result {
	ctx = llm.WithPurpose(ctx, llm.PurposeEvaluation)

	system := genericSystemPrompt
	if c.HasNursingData() {
		system = nursingSystemPrompt
	}

	req := llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildEvalMessage(c, transcript)},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}

	resp, err := e.provider.Generate(ctx, req)
	if err != nil {
		e.log.Warn("evaluation generation failed, using fallback", "case", c.ID, "error", err)
		if e.metrics != nil {
			e.metrics.FallbackEvaluations.Inc()
		}
		return Fallback()
	}

	text := resp.Text()
	return &Result{
		Text:    text,
		Metrics: Parse(text),
	}
}

// RecordFrom builds the persistable performance record for a session's
// evaluation result.
func RecordFrom(ses *store.Session, res *Result, now time.Time) *store.PerformanceRecord {
	return &store.PerformanceRecord{
		ID:                    uuid.NewString(),
		SessionID:             ses.ID,
		CaseID:                ses.CaseID,
		UserID:                ses.UserID,
		HistoryTaking:         string(res.Metrics.HistoryTaking),
		RiskAssessment:        string(res.Metrics.RiskAssessment),
		DifferentialReasoning: string(res.Metrics.DifferentialReasoning),
		Communication:         string(res.Metrics.Communication),
		ClinicalUrgency:       string(res.Metrics.ClinicalUrgency),
		OverallScore:          res.Metrics.OverallScore,
		Label:                 string(res.Metrics.Label),
		DiagnosisAccuracy:     string(res.Metrics.DiagnosisAccuracy),
		Summary:               res.Metrics.Summary,
		RawEvaluation:         res.Text,
		EvaluatedAt:           now,
	}
}
