package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Session status values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Transcript entry roles.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
	RoleSystem    = "system"
)

// Transcript entry kinds. Free dialogue is text; specialty action results
// are serialized structured payloads.
const (
	EntryText         = "text"
	EntryActionResult = "action_result"
)

// TranscriptEntry is one line of the encounter log. Entries are owned by
// their session and immutable once appended.
type TranscriptEntry struct {
	Role    string    `json:"role"`
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is one clinician–virtual-patient encounter.
type Session struct {
	ID     string
	CaseID string
	UserID string

	Status     string
	EndPending bool

	IsRetake          bool
	AttemptNumber     int
	PreviousSessionID string
	RetakeReason      string
	FocusAreas        []string

	Evaluation string

	ImprovementScore *int
	AreasImproved    []string
	AreasNeedingWork []string

	Transcript []TranscriptEntry

	CreatedAt time.Time
	EndedAt   *time.Time
}

// Ended reports whether the session has terminated.
func (s *Session) Ended() bool {
	return s.Status == StatusEnded
}

// Clone returns a deep copy suitable for immutable updates: callers
// mutate the copy and persist it in one save.
func (s *Session) Clone() *Session {
	next := *s
	next.Transcript = append([]TranscriptEntry(nil), s.Transcript...)
	next.FocusAreas = append([]string(nil), s.FocusAreas...)
	next.AreasImproved = append([]string(nil), s.AreasImproved...)
	next.AreasNeedingWork = append([]string(nil), s.AreasNeedingWork...)
	if s.ImprovementScore != nil {
		v := *s.ImprovementScore
		next.ImprovementScore = &v
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		next.EndedAt = &t
	}
	return &next
}

// CreateSession inserts a new session and its seed transcript entries.
func (s *Store) CreateSession(ctx context.Context, ses *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertSession(ctx, tx, ses); err != nil {
		return err
	}
	if err := appendEntries(ctx, tx, ses.ID, 0, ses.Transcript); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveSession updates a session row and appends any transcript entries
// past what is already stored. Stored entries are never rewritten.
func (s *Store) SaveSession(ctx context.Context, ses *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateSession(ctx, tx, ses); err != nil {
		return err
	}
	if err := appendNewEntries(ctx, tx, ses); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteSession persists the terminal state of a session together with
// its performance record in one transaction. Either both writes commit or
// neither does.
func (s *Store) CompleteSession(ctx context.Context, ses *Session, rec *PerformanceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateSession(ctx, tx, ses); err != nil {
		return err
	}
	if err := appendNewEntries(ctx, tx, ses); err != nil {
		return err
	}
	if err := insertPerformanceRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSession loads a session and its full transcript, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, case_id, user_id, status, end_pending, is_retake, attempt_number,
		previous_session_id, retake_reason, focus_areas, evaluation,
		improvement_score, areas_improved, areas_needing_work, created_at, ended_at
		FROM sessions WHERE id = ?`, id)

	ses, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	entries, err := s.loadTranscript(ctx, id)
	if err != nil {
		return nil, err
	}
	ses.Transcript = entries
	return ses, nil
}

// LatestSession returns the most recent session for (user, case) by
// attempt number, or ErrNotFound when none exists.
func (s *Store) LatestSession(ctx context.Context, userID, caseID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, case_id, user_id, status, end_pending, is_retake, attempt_number,
		previous_session_id, retake_reason, focus_areas, evaluation,
		improvement_score, areas_improved, areas_needing_work, created_at, ended_at
		FROM sessions WHERE user_id = ? AND case_id = ?
		ORDER BY attempt_number DESC, created_at DESC LIMIT 1`, userID, caseID)

	ses, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	entries, err := s.loadTranscript(ctx, ses.ID)
	if err != nil {
		return nil, err
	}
	ses.Transcript = entries
	return ses, nil
}

// MaxAttemptNumber returns the highest attempt number recorded for
// (user, case), or 0 when no session exists.
func (s *Store) MaxAttemptNumber(ctx context.Context, userID, caseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) FROM sessions
		 WHERE user_id = ? AND case_id = ?`, userID, caseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max attempt number: %w", err)
	}
	return n, nil
}

// ListLineage returns all sessions for (user, case) ordered by attempt
// number, without transcripts.
func (s *Store) ListLineage(ctx context.Context, userID, caseID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, case_id, user_id, status, end_pending, is_retake, attempt_number,
		previous_session_id, retake_reason, focus_areas, evaluation,
		improvement_score, areas_improved, areas_needing_work, created_at, ended_at
		FROM sessions WHERE user_id = ? AND case_id = ?
		ORDER BY attempt_number ASC, created_at ASC`, userID, caseID)
	if err != nil {
		return nil, fmt.Errorf("list lineage: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		ses, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ses)
	}
	return out, rows.Err()
}

func insertSession(ctx context.Context, tx *sql.Tx, ses *Session) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions
		(id, case_id, user_id, status, end_pending, is_retake, attempt_number,
		 previous_session_id, retake_reason, focus_areas, evaluation,
		 improvement_score, areas_improved, areas_needing_work, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ses.ID, ses.CaseID, ses.UserID, ses.Status, ses.EndPending,
		ses.IsRetake, ses.AttemptNumber, ses.PreviousSessionID,
		ses.RetakeReason, encodeStrings(ses.FocusAreas), ses.Evaluation,
		nullableInt(ses.ImprovementScore), encodeStrings(ses.AreasImproved),
		encodeStrings(ses.AreasNeedingWork), toMillis(ses.CreatedAt),
		nullableMillis(ses.EndedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func updateSession(ctx context.Context, tx *sql.Tx, ses *Session) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET
		status = ?, end_pending = ?, is_retake = ?, attempt_number = ?,
		previous_session_id = ?, retake_reason = ?, focus_areas = ?,
		evaluation = ?, improvement_score = ?, areas_improved = ?,
		areas_needing_work = ?, ended_at = ?
		WHERE id = ?`,
		ses.Status, ses.EndPending, ses.IsRetake, ses.AttemptNumber,
		ses.PreviousSessionID, ses.RetakeReason, encodeStrings(ses.FocusAreas),
		ses.Evaluation, nullableInt(ses.ImprovementScore),
		encodeStrings(ses.AreasImproved), encodeStrings(ses.AreasNeedingWork),
		nullableMillis(ses.EndedAt), ses.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// appendNewEntries inserts transcript entries past the stored high seq.
func appendNewEntries(ctx context.Context, tx *sql.Tx, ses *Session) error {
	var stored int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_entries WHERE session_id = ?`,
		ses.ID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("count transcript entries: %w", err)
	}
	if stored >= len(ses.Transcript) {
		return nil
	}
	return appendEntries(ctx, tx, ses.ID, stored, ses.Transcript[stored:])
}

func appendEntries(ctx context.Context, tx *sql.Tx, sessionID string, startSeq int, entries []TranscriptEntry) error {
	for i, e := range entries {
		_, err := tx.ExecContext(ctx, `INSERT INTO transcript_entries
			(session_id, seq, role, kind, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, startSeq+i, e.Role, e.Kind, e.Content, toMillis(e.At))
		if err != nil {
			return fmt.Errorf("insert transcript entry: %w", err)
		}
	}
	return nil
}

func (s *Store) loadTranscript(ctx context.Context, sessionID string) ([]TranscriptEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, kind, content, created_at FROM transcript_entries
		 WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var entries []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		var at int64
		if err := rows.Scan(&e.Role, &e.Kind, &e.Content, &at); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		e.At = fromMillis(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*Session, error) {
	ses, err := scanSessionFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ses, err
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(r rowScanner) (*Session, error) {
	var (
		ses              Session
		focusRaw         string
		improvedRaw      string
		needingRaw       string
		improvementScore sql.NullInt64
		createdAt        int64
		endedAt          sql.NullInt64
	)
	err := r.Scan(
		&ses.ID, &ses.CaseID, &ses.UserID, &ses.Status, &ses.EndPending,
		&ses.IsRetake, &ses.AttemptNumber, &ses.PreviousSessionID,
		&ses.RetakeReason, &focusRaw, &ses.Evaluation,
		&improvementScore, &improvedRaw, &needingRaw, &createdAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	ses.FocusAreas, err = decodeStrings(focusRaw)
	if err != nil {
		return nil, err
	}
	ses.AreasImproved, err = decodeStrings(improvedRaw)
	if err != nil {
		return nil, err
	}
	ses.AreasNeedingWork, err = decodeStrings(needingRaw)
	if err != nil {
		return nil, err
	}
	if improvementScore.Valid {
		v := int(improvementScore.Int64)
		ses.ImprovementScore = &v
	}
	ses.CreatedAt = fromMillis(createdAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		ses.EndedAt = &t
	}
	return &ses, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func decodeStrings(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}
