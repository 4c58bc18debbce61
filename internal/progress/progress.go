// Package progress notifies downstream learner-progress collaborators
// after a session terminates. Propagation is best-effort: it runs after
// the termination transaction has committed and its failures are logged,
// never surfaced.
package progress

import (
	"context"
	"log/slog"
	"time"
)

// Propagator is the general learner-progress collaborator.
type Propagator interface {
	// Update records that a performance record now exists for
	// (user, case).
	Update(ctx context.Context, userID, caseID, recordID string) error
}

// ProgramPropagator is the program-specific collaborator that tracks
// attempts within a training program.
type ProgramPropagator interface {
	// RecordAttempt records one completed attempt.
	RecordAttempt(ctx context.Context, userID string, attempt AttemptSummary) error
}

// AttemptSummary is the per-attempt payload sent to the program
// collaborator.
type AttemptSummary struct {
	CaseID        string
	SessionID     string
	RecordID      string
	AttemptNumber int
	IsRetake      bool

	// OverallScore is nil for fallback evaluations.
	OverallScore *int
	Label        string

	EvaluatedAt time.Time
}

// Notification is one termination handed to the dispatcher.
type Notification struct {
	UserID  string
	CaseID  string
	Attempt AttemptSummary
}

// LogPropagator is a Propagator and ProgramPropagator that only logs.
// Used when no real collaborator is wired, e.g. the local consult loop.
type LogPropagator struct {
	Log *slog.Logger
}

func (p *LogPropagator) Update(_ context.Context, userID, caseID, recordID string) error {
	p.logger().Info("progress update", "user", userID, "case", caseID, "record", recordID)
	return nil
}

func (p *LogPropagator) RecordAttempt(_ context.Context, userID string, attempt AttemptSummary) error {
	p.logger().Info("attempt recorded", "user", userID, "case", attempt.CaseID,
		"attempt", attempt.AttemptNumber, "label", attempt.Label)
	return nil
}

func (p *LogPropagator) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
