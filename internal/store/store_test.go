package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/oslerlabs/simcore/internal/simcase"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *Session {
	return &Session{
		ID:            id,
		CaseID:        "case-chest-pain",
		UserID:        "trainee-1",
		Status:        StatusActive,
		AttemptNumber: 1,
		CreatedAt:     time.Now(),
		Transcript: []TranscriptEntry{
			{Role: RolePatient, Kind: EntryText, Content: "My chest hurts.", At: time.Now()},
		},
	}
}

func TestOpenClose(t *testing.T) {
	s := openTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil sql.DB")
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestCaseRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetCase(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCase(missing) = %v, want ErrNotFound", err)
	}

	critHigh := 400.0
	c := &simcase.Case{
		ID:        "case-dka",
		Title:     "Adult with polyuria and fatigue",
		Specialty: simcase.SpecialtyLaboratory,
		Persona: simcase.Persona{
			Name:             "Maria Santos",
			Age:              34,
			Sex:              "female",
			OpeningStatement: "I've been so thirsty lately, and I can't stop going to the bathroom.",
		},
		Dossier: simcase.Dossier{
			HiddenDiagnosis: "diabetic ketoacidosis",
			ChiefComplaint:  "polyuria and fatigue",
			LabPanel: []simcase.LabReference{
				{Test: "Glucose", Specimen: "serum", Units: "mg/dL", ReferenceRange: "70-100", CriticalHigh: &critHigh},
			},
		},
		EvaluationCriteria: []string{"asked about fluid intake"},
	}
	if err := s.PutCase(ctx, c); err != nil {
		t.Fatalf("PutCase: %v", err)
	}

	got, err := s.GetCase(ctx, "case-dka")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Title != c.Title || got.Specialty != simcase.SpecialtyLaboratory {
		t.Errorf("case = %+v, want title %q specialty %q", got, c.Title, c.Specialty)
	}
	if got.Dossier.HiddenDiagnosis != "diabetic ketoacidosis" {
		t.Errorf("hidden diagnosis = %q", got.Dossier.HiddenDiagnosis)
	}
	if len(got.Dossier.LabPanel) != 1 || got.Dossier.LabPanel[0].CriticalHigh == nil {
		t.Fatalf("lab panel lost in roundtrip: %+v", got.Dossier.LabPanel)
	}

	// PutCase upserts.
	c.Title = "Adult with polyuria, fatigue, and weight loss"
	if err := s.PutCase(ctx, c); err != nil {
		t.Fatalf("PutCase upsert: %v", err)
	}
	got, err = s.GetCase(ctx, "case-dka")
	if err != nil {
		t.Fatalf("GetCase after upsert: %v", err)
	}
	if got.Title != c.Title {
		t.Errorf("title after upsert = %q, want %q", got.Title, c.Title)
	}

	all, err := s.ListCases(ctx)
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListCases returned %d cases, want 1", len(all))
	}
}

func TestSessionRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession(missing) = %v, want ErrNotFound", err)
	}

	ses := testSession("ses-1")
	if err := s.CreateSession(ctx, ses); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != StatusActive || got.AttemptNumber != 1 {
		t.Errorf("session = %+v", got)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Content != "My chest hurts." {
		t.Fatalf("transcript = %+v", got.Transcript)
	}
}

func TestSaveSessionAppendsOnlyNewEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ses := testSession("ses-1")
	if err := s.CreateSession(ctx, ses); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	next := ses.Clone()
	next.Transcript = append(next.Transcript,
		TranscriptEntry{Role: RoleClinician, Kind: EntryText, Content: "When did it start?", At: time.Now()},
		TranscriptEntry{Role: RolePatient, Kind: EntryText, Content: "About two hours ago.", At: time.Now()},
	)
	next.EndPending = true
	if err := s.SaveSession(ctx, next); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Saving the same state again must not duplicate entries.
	if err := s.SaveSession(ctx, next); err != nil {
		t.Fatalf("SaveSession again: %v", err)
	}

	got, err := s.GetSession(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Transcript) != 3 {
		t.Fatalf("transcript has %d entries, want 3", len(got.Transcript))
	}
	if !got.EndPending {
		t.Error("EndPending not persisted")
	}
	if got.Transcript[1].Role != RoleClinician || got.Transcript[2].Role != RolePatient {
		t.Errorf("entry order wrong: %+v", got.Transcript)
	}
}

func TestSaveSessionMissing(t *testing.T) {
	s := openTestStore(t)
	ses := testSession("never-created")
	if err := s.SaveSession(context.Background(), ses); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveSession on missing session = %v, want ErrNotFound", err)
	}
}

func TestCompleteSessionAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ses := testSession("ses-1")
	if err := s.CreateSession(ctx, ses); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now()
	score := 82
	ended := ses.Clone()
	ended.Status = StatusEnded
	ended.Evaluation = "OVERALL SCORE: 82"
	ended.EndedAt = &now

	rec := &PerformanceRecord{
		ID:            "rec-1",
		SessionID:     ses.ID,
		CaseID:        ses.CaseID,
		UserID:        ses.UserID,
		HistoryTaking: "Good",
		OverallScore:  &score,
		Label:         "Very Good",
		EvaluatedAt:   now,
	}
	if err := s.CompleteSession(ctx, ended, rec); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	got, err := s.GetSession(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !got.Ended() || got.EndedAt == nil {
		t.Errorf("session not ended: %+v", got)
	}

	gotRec, err := s.GetPerformanceRecord(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetPerformanceRecord: %v", err)
	}
	if gotRec.OverallScore == nil || *gotRec.OverallScore != 82 {
		t.Errorf("record score = %v, want 82", gotRec.OverallScore)
	}
	if gotRec.Label != "Very Good" {
		t.Errorf("record label = %q", gotRec.Label)
	}
}

func TestCompleteSessionRollsBackOnDuplicateRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ses := testSession("ses-1")
	if err := s.CreateSession(ctx, ses); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now := time.Now()
	ended := ses.Clone()
	ended.Status = StatusEnded
	ended.EndedAt = &now
	rec := &PerformanceRecord{ID: "rec-1", SessionID: ses.ID, CaseID: ses.CaseID, UserID: ses.UserID, EvaluatedAt: now}
	if err := s.CompleteSession(ctx, ended, rec); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	// A second record for the same session violates the unique constraint;
	// the session update in the same transaction must roll back with it.
	again := ended.Clone()
	again.Evaluation = "second write"
	rec2 := &PerformanceRecord{ID: "rec-2", SessionID: ses.ID, CaseID: ses.CaseID, UserID: ses.UserID, EvaluatedAt: now}
	if err := s.CompleteSession(ctx, again, rec2); err == nil {
		t.Fatal("expected duplicate performance record to fail")
	}

	got, err := s.GetSession(ctx, "ses-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Evaluation == "second write" {
		t.Error("session update survived a failed transaction")
	}
}

func TestAttemptLineage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.MaxAttemptNumber(ctx, "trainee-1", "case-chest-pain")
	if err != nil {
		t.Fatalf("MaxAttemptNumber: %v", err)
	}
	if n != 0 {
		t.Errorf("MaxAttemptNumber with no sessions = %d, want 0", n)
	}
	if _, err := s.LatestSession(ctx, "trainee-1", "case-chest-pain"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestSession with no sessions = %v, want ErrNotFound", err)
	}

	first := testSession("ses-1")
	second := testSession("ses-2")
	second.AttemptNumber = 2
	second.IsRetake = true
	second.PreviousSessionID = "ses-1"
	second.FocusAreas = []string{"history taking"}
	for _, ses := range []*Session{first, second} {
		if err := s.CreateSession(ctx, ses); err != nil {
			t.Fatalf("CreateSession(%s): %v", ses.ID, err)
		}
	}

	n, err = s.MaxAttemptNumber(ctx, "trainee-1", "case-chest-pain")
	if err != nil {
		t.Fatalf("MaxAttemptNumber: %v", err)
	}
	if n != 2 {
		t.Errorf("MaxAttemptNumber = %d, want 2", n)
	}

	latest, err := s.LatestSession(ctx, "trainee-1", "case-chest-pain")
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "ses-2" || !latest.IsRetake {
		t.Errorf("latest = %+v, want ses-2 retake", latest)
	}
	if len(latest.FocusAreas) != 1 || latest.FocusAreas[0] != "history taking" {
		t.Errorf("focus areas = %v", latest.FocusAreas)
	}

	lineage, err := s.ListLineage(ctx, "trainee-1", "case-chest-pain")
	if err != nil {
		t.Fatalf("ListLineage: %v", err)
	}
	if len(lineage) != 2 || lineage[0].ID != "ses-1" || lineage[1].ID != "ses-2" {
		t.Errorf("lineage order wrong: %+v", lineage)
	}
}

func TestLLMEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	evs := []LLMEvent{
		{Provider: "mock", Model: "mock", Purpose: "patient_reply", Streamed: true, InputTokens: 100, OutputTokens: 40, LatencyMs: 12, Success: true, CostUSD: 0.001},
		{Provider: "mock", Model: "mock", Purpose: "evaluation", InputTokens: 300, OutputTokens: 120, LatencyMs: 30, Success: false, ErrorMessage: "rate limited"},
	}
	for _, ev := range evs {
		if err := s.RecordLLMEvent(ctx, ev); err != nil {
			t.Fatalf("RecordLLMEvent: %v", err)
		}
	}

	got, err := s.ListLLMEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListLLMEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].Purpose != "evaluation" {
		t.Errorf("first event purpose = %q, want evaluation", got[0].Purpose)
	}

	one, err := s.GetLLMEvent(ctx, got[1].ID)
	if err != nil {
		t.Fatalf("GetLLMEvent: %v", err)
	}
	if !one.Streamed || !one.Success {
		t.Errorf("event = %+v", one)
	}
	if _, err := s.GetLLMEvent(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetLLMEvent(9999) = %v, want ErrNotFound", err)
	}

	byPurpose, err := s.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("LLMUsageByPurpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("got %d usage rows, want 2", len(byPurpose))
	}
	total := 0
	for _, u := range byPurpose {
		total += u.InputTokens
	}
	if total != 400 {
		t.Errorf("total input tokens = %d, want 400", total)
	}
}
