// Package encounter orchestrates one clinical-simulation session:
// start, ask, end, retake, and improvement comparison. The engine owns
// every state invariant; collaborators are pure or external.
package encounter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oslerlabs/simcore/internal/evaluation"
	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/metrics"
	"github.com/oslerlabs/simcore/internal/patient"
	"github.com/oslerlabs/simcore/internal/progress"
	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/specialty"
	"github.com/oslerlabs/simcore/internal/store"
)

// Store is the persistence surface the engine requires. *store.Store
// satisfies it.
type Store interface {
	GetCase(ctx context.Context, id string) (*simcase.Case, error)

	CreateSession(ctx context.Context, ses *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	SaveSession(ctx context.Context, ses *store.Session) error
	CompleteSession(ctx context.Context, ses *store.Session, rec *store.PerformanceRecord) error

	LatestSession(ctx context.Context, userID, caseID string) (*store.Session, error)
	MaxAttemptNumber(ctx context.Context, userID, caseID string) (int, error)

	GetPerformanceRecord(ctx context.Context, sessionID string) (*store.PerformanceRecord, error)
}

// Config holds engine tunables.
type Config struct {
	// EndTriggers are substrings of a clinician question that arm
	// session termination. Matching is case-insensitive.
	EndTriggers []string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		EndTriggers: []string{"diagnos"},
	}
}

// Engine is the session lifecycle controller.
type Engine struct {
	store      Store
	generator  *patient.Generator
	evaluator  *evaluation.Engine
	actions    *specialty.Registry
	dispatcher *progress.Dispatcher
	cfg        Config
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewEngine wires the controller. dispatcher and metrics may be nil; a
// nil logger falls back to slog.Default.
func NewEngine(st Store, gen *patient.Generator, eval *evaluation.Engine, actions *specialty.Registry, dispatcher *progress.Dispatcher, cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.EndTriggers) == 0 {
		cfg.EndTriggers = DefaultConfig().EndTriggers
	}
	return &Engine{
		store:      st,
		generator:  gen,
		evaluator:  eval,
		actions:    actions,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		metrics:    m,
	}
}

// StartResult is returned by Start and StartRetake.
type StartResult struct {
	SessionID     string `json:"session_id"`
	InitialPrompt string `json:"initial_prompt,omitempty"`
	PatientName   string `json:"patient_name"`
	SpeaksFor     string `json:"speaks_for,omitempty"`
	IsRetake      bool   `json:"is_retake,omitempty"`
	AttemptNumber int    `json:"attempt_number"`
}

// Start creates a new session for the case, seeding the transcript with
// the persona's opening statement when one exists.
func (e *Engine) Start(ctx context.Context, caseID, userID string) (*StartResult, error) {
	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	ses := newSession(c, userID)

	if err := e.store.CreateSession(ctx, ses); err != nil {
		return nil, &InternalError{Op: "create session", Err: err}
	}
	if e.metrics != nil {
		e.metrics.SessionsStarted.Inc()
	}
	e.log.Info("session started", "session", ses.ID, "case", c.ID, "user", userID)

	return &StartResult{
		SessionID:     ses.ID,
		InitialPrompt: c.Persona.OpeningStatement,
		PatientName:   c.DisplayName(),
		SpeaksFor:     c.Persona.SpeaksFor,
		AttemptNumber: ses.AttemptNumber,
	}, nil
}

// StartRetakeParams describes a retake request.
type StartRetakeParams struct {
	CaseID string
	UserID string

	// PreviousSessionID pins the lineage explicitly. When empty the
	// latest session for (user, case) is used.
	PreviousSessionID string

	Reason     string
	FocusAreas []string
}

// StartRetake creates a retake session linked to the prior attempt. The
// attempt number is one past the highest recorded for (user, case).
func (e *Engine) StartRetake(ctx context.Context, p StartRetakeParams) (*StartResult, error) {
	c, err := e.loadCase(ctx, p.CaseID)
	if err != nil {
		return nil, err
	}

	previousID := p.PreviousSessionID
	if previousID != "" {
		prev, err := e.store.GetSession(ctx, previousID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "previous session", ID: previousID}
		}
		if err != nil {
			return nil, &InternalError{Op: "load previous session", Err: err}
		}
		if prev.CaseID != c.ID {
			return nil, &InvalidArgumentError{Reason: "previous session belongs to a different case"}
		}
		if !prev.Ended() {
			return nil, &InvalidArgumentError{Reason: "previous session has not ended"}
		}
	} else {
		prev, err := e.store.LatestSession(ctx, p.UserID, c.ID)
		if err == nil {
			previousID = prev.ID
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, &InternalError{Op: "load previous session", Err: err}
		}
	}

	maxAttempt, err := e.store.MaxAttemptNumber(ctx, p.UserID, c.ID)
	if err != nil {
		return nil, &InternalError{Op: "resolve attempt number", Err: err}
	}

	ses := newSession(c, p.UserID)
	ses.IsRetake = true
	ses.AttemptNumber = maxAttempt + 1
	ses.PreviousSessionID = previousID
	ses.RetakeReason = p.Reason
	ses.FocusAreas = append([]string(nil), p.FocusAreas...)

	if err := e.store.CreateSession(ctx, ses); err != nil {
		return nil, &InternalError{Op: "create session", Err: err}
	}
	if e.metrics != nil {
		e.metrics.SessionsStarted.Inc()
	}
	e.log.Info("retake started", "session", ses.ID, "case", c.ID,
		"user", p.UserID, "attempt", ses.AttemptNumber)

	return &StartResult{
		SessionID:     ses.ID,
		InitialPrompt: c.Persona.OpeningStatement,
		PatientName:   c.DisplayName(),
		SpeaksFor:     c.Persona.SpeaksFor,
		IsRetake:      true,
		AttemptNumber: ses.AttemptNumber,
	}, nil
}

// AskResult is returned by Ask. Exactly one of the streamed path or
// ActionResult is populated.
type AskResult struct {
	// Streamed is set when the reply went through the stream sink.
	Streamed bool `json:"streamed,omitempty"`

	// SessionShouldEnd is set when the question matched an end trigger;
	// the session is now end-pending.
	SessionShouldEnd bool `json:"session_should_end,omitempty"`

	// ActionResult is the synchronous payload of a specialty action.
	ActionResult json.RawMessage `json:"action_result,omitempty"`
}

// Ask appends the clinician's question and produces the patient's reply:
// a one-shot structured payload for specialty actions, a streamed reply
// otherwise. The updated session is persisted exactly once before
// returning.
func (e *Engine) Ask(ctx context.Context, sessionID, question string, sink patient.Sink) (*AskResult, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.AskDuration.Observe(time.Since(start).Seconds())
		}
	}()

	ses, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ses.Ended() {
		return nil, &ForbiddenError{Reason: "session has already ended"}
	}

	// A session whose case no longer resolves is broken referential
	// data, not a caller mistake.
	c, err := e.store.GetCase(ctx, ses.CaseID)
	if err != nil {
		return nil, &InternalError{Op: "load case", Err: err}
	}

	if e.actions != nil && e.actions.HasActions(c.Specialty) {
		if action, ok := specialty.ParseAction(question); ok {
			return e.dispatchAction(ctx, ses, c, question, action)
		}
	}

	return e.streamReply(ctx, ses, c, question, sink)
}

// dispatchAction routes a structured action and appends both the
// clinician envelope and the system result in one save. An unknown type
// leaves the transcript untouched.
func (e *Engine) dispatchAction(ctx context.Context, ses *store.Session, c *simcase.Case, question string, action *specialty.Action) (*AskResult, error) {
	payload, err := e.actions.Dispatch(c, action)
	if err != nil {
		if errors.Is(err, specialty.ErrUnknownAction) {
			return nil, &InvalidArgumentError{Reason: "unknown action type", Err: err}
		}
		return nil, &InvalidArgumentError{Reason: "malformed action data", Err: err}
	}

	now := time.Now()
	next := ses.Clone()
	next.Transcript = append(next.Transcript,
		store.TranscriptEntry{Role: store.RoleClinician, Kind: store.EntryText, Content: question, At: now},
		store.TranscriptEntry{Role: store.RoleSystem, Kind: store.EntryActionResult, Content: string(payload), At: now},
	)

	if err := e.store.SaveSession(ctx, next); err != nil {
		return nil, &InternalError{Op: "save session", Err: err}
	}
	if e.metrics != nil {
		e.metrics.SpecialtyActions.WithLabelValues(action.Type).Inc()
	}

	return &AskResult{ActionResult: payload}, nil
}

// streamReply relays one generated reply through the sink and persists
// the session once, whatever the stream's outcome.
func (e *Engine) streamReply(ctx context.Context, ses *store.Session, c *simcase.Case, question string, sink patient.Sink) (*AskResult, error) {
	willEnd := e.matchesEndTrigger(question)

	next := ses.Clone()
	next.Transcript = append(next.Transcript, store.TranscriptEntry{
		Role: store.RoleClinician, Kind: store.EntryText, Content: question, At: time.Now(),
	})

	reply, genErr := e.generator.Reply(ctx, c, ses.Transcript, question, willEnd, sink)
	if genErr == nil {
		next.Transcript = append(next.Transcript, store.TranscriptEntry{
			Role: store.RolePatient, Kind: store.EntryText, Content: reply.Text, At: time.Now(),
		})
		if willEnd {
			next.EndPending = true
		}
	}

	// The clinician entry, and whatever reply arrived before a failure,
	// are persisted either way.
	if err := e.store.SaveSession(ctx, next); err != nil {
		return nil, &InternalError{Op: "save session", Err: err}
	}

	if genErr != nil {
		var aborted *llm.ErrStreamAborted
		if errors.As(genErr, &aborted) {
			// The transport closed the sink; nothing more to emit.
			e.log.Info("reply stream aborted by transport", "session", ses.ID)
			return &AskResult{Streamed: true}, nil
		}
		e.log.Warn("patient reply failed", "session", ses.ID, "error", genErr)
		if e.metrics != nil {
			e.metrics.GenerationFailures.Inc()
		}
		// The single error notice has already been emitted on the
		// stream; the operation itself completes.
		return &AskResult{Streamed: true}, nil
	}

	return &AskResult{Streamed: true, SessionShouldEnd: willEnd}, nil
}

// EndResult is returned by End.
type EndResult struct {
	SessionEnded bool                     `json:"session_ended"`
	Evaluation   string                   `json:"evaluation"`
	Transcript   []store.TranscriptEntry  `json:"transcript"`
	Record       *store.PerformanceRecord `json:"record,omitempty"`
}

// End terminates a session: evaluate the transcript, persist the
// performance record and the ended session in one transaction, then
// notify progress collaborators best-effort. Calling End on an already
// ended session returns the cached evaluation and transcript without
// recomputation.
func (e *Engine) End(ctx context.Context, sessionID, userID string) (*EndResult, error) {
	ses, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if ses.Ended() && ses.Evaluation != "" {
		rec, recErr := e.store.GetPerformanceRecord(ctx, ses.ID)
		if recErr != nil && !errors.Is(recErr, store.ErrNotFound) {
			return nil, &InternalError{Op: "load performance record", Err: recErr}
		}
		return &EndResult{
			SessionEnded: true,
			Evaluation:   ses.Evaluation,
			Transcript:   ses.Transcript,
			Record:       rec,
		}, nil
	}

	c, err := e.store.GetCase(ctx, ses.CaseID)
	if err != nil {
		return nil, &InternalError{Op: "load case", Err: err}
	}

	// Generation failure inside Evaluate degrades to the fixed fallback;
	// from here on, termination always succeeds unless the transaction
	// itself fails.
	result := e.evaluator.Evaluate(ctx, c, ses.Transcript)

	now := time.Now()
	next := ses.Clone()
	next.Status = store.StatusEnded
	next.EndPending = false
	next.Evaluation = result.Text
	next.EndedAt = &now
	if next.UserID == "" {
		next.UserID = userID
	}

	rec := evaluation.RecordFrom(next, result, now)

	if err := e.store.CompleteSession(ctx, next, rec); err != nil {
		return nil, &InternalError{Op: "terminate session", Err: err}
	}
	if e.metrics != nil {
		e.metrics.SessionsEnded.Inc()
	}
	e.log.Info("session ended", "session", next.ID, "case", next.CaseID,
		"label", rec.Label)

	if e.dispatcher != nil {
		e.dispatcher.Notify(progress.Notification{
			UserID: next.UserID,
			CaseID: next.CaseID,
			Attempt: progress.AttemptSummary{
				CaseID:        next.CaseID,
				SessionID:     next.ID,
				RecordID:      rec.ID,
				AttemptNumber: next.AttemptNumber,
				IsRetake:      next.IsRetake,
				OverallScore:  rec.OverallScore,
				Label:         rec.Label,
				EvaluatedAt:   rec.EvaluatedAt,
			},
		})
	}

	return &EndResult{
		SessionEnded: true,
		Evaluation:   next.Evaluation,
		Transcript:   next.Transcript,
		Record:       rec,
	}, nil
}

// Improvement is the retake comparison between two evaluated sessions.
type Improvement struct {
	// Score is current overall minus previous overall, nil when either
	// evaluation carried no score.
	Score *int `json:"improvement_score"`

	AreasImproved    []string `json:"areas_improved"`
	AreasNeedingWork []string `json:"areas_needing_work"`
}

// CompareImprovement compares two evaluated sessions criterion by
// criterion and caches the result on the current session.
func (e *Engine) CompareImprovement(ctx context.Context, currentID, previousID string) (*Improvement, error) {
	current, err := e.loadSession(ctx, currentID)
	if err != nil {
		return nil, err
	}
	previous, err := e.loadSession(ctx, previousID)
	if err != nil {
		return nil, err
	}

	curRec, err := e.evaluatedRecord(ctx, current)
	if err != nil {
		return nil, err
	}
	prevRec, err := e.evaluatedRecord(ctx, previous)
	if err != nil {
		return nil, err
	}

	imp := compareRecords(curRec, prevRec)

	next := current.Clone()
	next.ImprovementScore = imp.Score
	next.AreasImproved = imp.AreasImproved
	next.AreasNeedingWork = imp.AreasNeedingWork
	if err := e.store.SaveSession(ctx, next); err != nil {
		return nil, &InternalError{Op: "cache improvement", Err: err}
	}

	return imp, nil
}

// evaluatedRecord loads a session's performance record, requiring the
// session to be evaluated.
func (e *Engine) evaluatedRecord(ctx context.Context, ses *store.Session) (*store.PerformanceRecord, error) {
	if !ses.Ended() || ses.Evaluation == "" {
		return nil, &InvalidStateError{Reason: "session " + ses.ID + " has not been evaluated"}
	}
	rec, err := e.store.GetPerformanceRecord(ctx, ses.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &InvalidStateError{Reason: "session " + ses.ID + " has not been evaluated"}
	}
	if err != nil {
		return nil, &InternalError{Op: "load performance record", Err: err}
	}
	return rec, nil
}

// compareRecords maps each rating onto its ordinal and partitions the
// criteria into improved (delta > 0) and needing work (delta < 0).
func compareRecords(cur, prev *store.PerformanceRecord) *Improvement {
	criteria := []struct {
		name     string
		cur, prv string
	}{
		{evaluation.CriterionHistoryTaking, cur.HistoryTaking, prev.HistoryTaking},
		{evaluation.CriterionRiskAssessment, cur.RiskAssessment, prev.RiskAssessment},
		{evaluation.CriterionDifferentialReasoning, cur.DifferentialReasoning, prev.DifferentialReasoning},
		{evaluation.CriterionCommunication, cur.Communication, prev.Communication},
		{evaluation.CriterionClinicalUrgency, cur.ClinicalUrgency, prev.ClinicalUrgency},
	}

	imp := &Improvement{}
	for _, crit := range criteria {
		delta := evaluation.Rating(crit.cur).Ordinal() - evaluation.Rating(crit.prv).Ordinal()
		switch {
		case delta > 0:
			imp.AreasImproved = append(imp.AreasImproved, crit.name)
		case delta < 0:
			imp.AreasNeedingWork = append(imp.AreasNeedingWork, crit.name)
		}
	}

	if cur.OverallScore != nil && prev.OverallScore != nil {
		delta := *cur.OverallScore - *prev.OverallScore
		imp.Score = &delta
	}
	return imp
}

// matchesEndTrigger reports whether the question arms termination.
func (e *Engine) matchesEndTrigger(question string) bool {
	lower := strings.ToLower(question)
	for _, trigger := range e.cfg.EndTriggers {
		if strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

func (e *Engine) loadCase(ctx context.Context, caseID string) (*simcase.Case, error) {
	c, err := e.store.GetCase(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "case", ID: caseID}
	}
	if err != nil {
		return nil, &InternalError{Op: "load case", Err: err}
	}
	return c, nil
}

// loadSession validates the identifier and loads the session.
func (e *Engine) loadSession(ctx context.Context, sessionID string) (*store.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, &InvalidArgumentError{Reason: "malformed session id", Err: err}
	}
	ses, err := e.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, &InternalError{Op: "load session", Err: err}
	}
	return ses, nil
}

func newSession(c *simcase.Case, userID string) *store.Session {
	ses := &store.Session{
		ID:            uuid.NewString(),
		CaseID:        c.ID,
		UserID:        userID,
		Status:        store.StatusActive,
		AttemptNumber: 1,
		CreatedAt:     time.Now(),
	}
	if c.Persona.OpeningStatement != "" {
		ses.Transcript = append(ses.Transcript, store.TranscriptEntry{
			Role:    store.RolePatient,
			Kind:    store.EntryText,
			Content: c.Persona.OpeningStatement,
			At:      ses.CreatedAt,
		})
	}
	return ses
}
