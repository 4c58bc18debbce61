package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PerformanceRecord is the persisted scoring artifact, 1:1 with an ended
// session. Ratings and labels are stored as the string forms defined in
// internal/evaluation.
type PerformanceRecord struct {
	ID        string
	SessionID string
	CaseID    string
	UserID    string

	HistoryTaking         string
	RiskAssessment        string
	DifferentialReasoning string
	Communication         string
	ClinicalUrgency       string

	// OverallScore is 0-100, or nil when the evaluation could not
	// produce a numeric score.
	OverallScore *int

	Label             string
	DiagnosisAccuracy string
	Summary           string
	RawEvaluation     string

	EvaluatedAt time.Time
}

func insertPerformanceRecord(ctx context.Context, tx *sql.Tx, rec *PerformanceRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO performance_records
		(id, session_id, case_id, user_id, history_taking, risk_assessment,
		 differential_reasoning, communication, clinical_urgency,
		 overall_score, label, diagnosis_accuracy, summary, raw_evaluation,
		 evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.CaseID, rec.UserID,
		rec.HistoryTaking, rec.RiskAssessment, rec.DifferentialReasoning,
		rec.Communication, rec.ClinicalUrgency, nullableInt(rec.OverallScore),
		rec.Label, rec.DiagnosisAccuracy, rec.Summary, rec.RawEvaluation,
		toMillis(rec.EvaluatedAt))
	if err != nil {
		return fmt.Errorf("insert performance record: %w", err)
	}
	return nil
}

// GetPerformanceRecord returns the record for a session, or ErrNotFound.
func (s *Store) GetPerformanceRecord(ctx context.Context, sessionID string) (*PerformanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, session_id, case_id, user_id, history_taking, risk_assessment,
		differential_reasoning, communication, clinical_urgency,
		overall_score, label, diagnosis_accuracy, summary, raw_evaluation,
		evaluated_at
		FROM performance_records WHERE session_id = ?`, sessionID)

	var (
		rec         PerformanceRecord
		score       sql.NullInt64
		evaluatedAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.CaseID, &rec.UserID,
		&rec.HistoryTaking, &rec.RiskAssessment, &rec.DifferentialReasoning,
		&rec.Communication, &rec.ClinicalUrgency, &score, &rec.Label,
		&rec.DiagnosisAccuracy, &rec.Summary, &rec.RawEvaluation, &evaluatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan performance record: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		rec.OverallScore = &v
	}
	rec.EvaluatedAt = fromMillis(evaluatedAt)
	return &rec, nil
}
