package simcase

import "context"

// Store is the case repository contract: read access for encounters and
// seed access for authoring tools. The sqlite implementation lives in
// internal/store.
type Store interface {
	// GetCase returns the case with the given ID, or store.ErrNotFound.
	GetCase(ctx context.Context, id string) (*Case, error)

	// ListCases returns all cases ordered by ID.
	ListCases(ctx context.Context) ([]*Case, error)

	// PutCase inserts or replaces a case definition.
	PutCase(ctx context.Context, c *Case) error
}
