package store

import "database/sql"

// schema is applied at Open. Statements are idempotent; there is no
// migration machinery because the schema is not expected to evolve.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cases (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		specialty  TEXT NOT NULL,
		persona    TEXT NOT NULL,
		dossier    TEXT NOT NULL,
		criteria   TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                  TEXT PRIMARY KEY,
		case_id             TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		status              TEXT NOT NULL,
		end_pending         INTEGER NOT NULL DEFAULT 0,
		is_retake           INTEGER NOT NULL DEFAULT 0,
		attempt_number      INTEGER NOT NULL DEFAULT 1,
		previous_session_id TEXT NOT NULL DEFAULT '',
		retake_reason       TEXT NOT NULL DEFAULT '',
		focus_areas         TEXT NOT NULL DEFAULT '[]',
		evaluation          TEXT NOT NULL DEFAULT '',
		improvement_score   INTEGER,
		areas_improved      TEXT NOT NULL DEFAULT '[]',
		areas_needing_work  TEXT NOT NULL DEFAULT '[]',
		created_at          INTEGER NOT NULL,
		ended_at            INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_case
		ON sessions (user_id, case_id, attempt_number)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		kind       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS performance_records (
		id                     TEXT PRIMARY KEY,
		session_id             TEXT NOT NULL UNIQUE,
		case_id                TEXT NOT NULL,
		user_id                TEXT NOT NULL,
		history_taking         TEXT NOT NULL,
		risk_assessment        TEXT NOT NULL,
		differential_reasoning TEXT NOT NULL,
		communication          TEXT NOT NULL,
		clinical_urgency       TEXT NOT NULL,
		overall_score          INTEGER,
		label                  TEXT NOT NULL,
		diagnosis_accuracy     TEXT NOT NULL,
		summary                TEXT NOT NULL DEFAULT '',
		raw_evaluation         TEXT NOT NULL DEFAULT '',
		evaluated_at           INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS llm_events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		streamed      INTEGER NOT NULL DEFAULT 0,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		cost_usd      REAL NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
