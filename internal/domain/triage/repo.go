package triage

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	// FindActive returns the patient's in_progress session or ErrNotFound.
	FindActive(ctx context.Context, patientID uuid.UUID) (*Session, error)
	// CreateActive inserts s as the patient's in_progress session. If another
	// in_progress session already exists, that one is returned instead.
	CreateActive(ctx context.Context, s *Session) (*Session, error)
	// GetForPatient returns the session only when it belongs to patientID.
	GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Session, error)
	// Mutate loads the patient's session under a row lock, applies fn, and
	// persists the result in the same transaction. If fn returns an error
	// nothing is written; ErrNoChange is not an error and yields the session
	// as loaded.
	Mutate(ctx context.Context, id, patientID uuid.UUID, fn func(*Session) error) (*Session, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error)
}

type SymptomCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (*Symptom, error)
	// Resolve returns the catalog entries for ids. Unknown ids are omitted.
	Resolve(ctx context.Context, ids []uuid.UUID) ([]Symptom, error)
	List(ctx context.Context) ([]Symptom, error)
	Create(ctx context.Context, s *Symptom) error
}

type RedFlagCatalog interface {
	// List returns every rule in catalog order.
	List(ctx context.Context) ([]RedFlag, error)
	Create(ctx context.Context, rf *RedFlag) error
}
