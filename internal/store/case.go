package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oslerlabs/simcore/internal/simcase"
)

// PutCase inserts or replaces a case definition. Persona, dossier, and
// criteria are stored as JSON columns.
func (s *Store) PutCase(ctx context.Context, c *simcase.Case) error {
	persona, err := json.Marshal(c.Persona)
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}
	dossier, err := json.Marshal(c.Dossier)
	if err != nil {
		return fmt.Errorf("marshal dossier: %w", err)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO cases
		(id, title, specialty, persona, dossier, criteria, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, string(c.Specialty), string(persona), string(dossier),
		encodeStrings(c.EvaluationCriteria), toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("put case: %w", err)
	}
	return nil
}

// GetCase returns the case with the given ID, or ErrNotFound.
func (s *Store) GetCase(ctx context.Context, id string) (*simcase.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, specialty, persona, dossier, criteria, created_at
		 FROM cases WHERE id = ?`, id)

	c, err := scanCase(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCases returns all cases ordered by ID.
func (s *Store) ListCases(ctx context.Context) ([]*simcase.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, specialty, persona, dossier, criteria, created_at
		 FROM cases ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*simcase.Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCase(scan func(dest ...any) error) (*simcase.Case, error) {
	var (
		c           simcase.Case
		specialty   string
		personaRaw  string
		dossierRaw  string
		criteriaRaw string
		createdAt   int64
	)
	if err := scan(&c.ID, &c.Title, &specialty, &personaRaw, &dossierRaw, &criteriaRaw, &createdAt); err != nil {
		return nil, err
	}
	c.Specialty = simcase.Specialty(specialty)
	if err := json.Unmarshal([]byte(personaRaw), &c.Persona); err != nil {
		return nil, fmt.Errorf("unmarshal persona: %w", err)
	}
	if err := json.Unmarshal([]byte(dossierRaw), &c.Dossier); err != nil {
		return nil, fmt.Errorf("unmarshal dossier: %w", err)
	}
	criteria, err := decodeStrings(criteriaRaw)
	if err != nil {
		return nil, err
	}
	c.EvaluationCriteria = criteria
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}
