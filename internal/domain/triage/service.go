package triage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	sessions SessionRepository
	symptoms SymptomCatalog
	redFlags RedFlagCatalog
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(sessions SessionRepository, symptoms SymptomCatalog, redFlags RedFlagCatalog) *Service {
	return &Service{
		sessions: sessions,
		symptoms: symptoms,
		redFlags: redFlags,
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger attaches a logger for lifecycle events.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "triage").Logger()
}

// -- Sessions --

// StartSession returns the patient's in-progress session, creating one when
// none exists.
func (s *Service) StartSession(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	if patientID == uuid.Nil {
		return nil, invalidf("patient_id is required")
	}
	active, err := s.sessions.FindActive(ctx, patientID)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	created, err := s.sessions.CreateActive(ctx, &Session{
		ID:               uuid.New(),
		PatientID:        patientID,
		SymptomsReported: NewSymptomSet(),
		Status:           StatusInProgress,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("session_id", created.ID.String()).
		Str("patient_id", patientID.String()).
		Msg("session started")
	return created, nil
}

// AddSymptom records symptomID on an in-progress session. Adding a symptom
// that is already present is a no-op.
//
// The catalog lookup happens before the session row is locked so that a
// mutation never holds one connection while waiting for another.
func (s *Service) AddSymptom(ctx context.Context, sessionID, patientID, symptomID uuid.UUID) (*Session, error) {
	_, lookupErr := s.symptoms.Get(ctx, symptomID)
	return s.sessions.Mutate(ctx, sessionID, patientID, func(sess *Session) error {
		if sess.IsCompleted() {
			return fmt.Errorf("add symptom to session %s: %w", sess.ID, ErrInvalidState)
		}
		if lookupErr != nil {
			return lookupErr
		}
		if !sess.SymptomsReported.Add(symptomID) {
			return ErrNoChange
		}
		return nil
	})
}

// FinalizeSession scores the session and marks it completed. Finalizing a
// completed session replays the stored outcome without touching the catalog.
func (s *Service) FinalizeSession(ctx context.Context, sessionID, patientID uuid.UUID) (*Result, error) {
	current, err := s.sessions.GetForPatient(ctx, sessionID, patientID)
	if err != nil {
		return nil, err
	}
	if current.IsCompleted() {
		return current.result(), nil
	}

	catalog, err := s.symptoms.List(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.redFlags.List(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Mutate(ctx, sessionID, patientID, func(sess *Session) error {
		if sess.IsCompleted() {
			// Finalized by a concurrent request after the read above.
			return ErrNoChange
		}
		a := Score(resolveFrom(catalog, sess.SymptomsReported.IDs()), rules)
		return sess.complete(a, s.now())
	})
	if err != nil {
		return nil, err
	}
	res := sess.result()

	evt := s.logger.Info().
		Str("session_id", sess.ID.String()).
		Int("symptoms", len(res.Symptoms)).
		Int("red_flags", len(res.Matched))
	if sess.RiskScore != nil && sess.TriageResult != nil {
		evt = evt.Float64("risk_score", *sess.RiskScore).Str("action", string(*sess.TriageResult))
	}
	evt.Msg("session finalized")
	return res, nil
}

// resolveFrom picks the catalog entries for ids, ordered by name. Ids missing
// from the catalog are dropped.
func resolveFrom(catalog []Symptom, ids []uuid.UUID) []Symptom {
	want := NewSymptomSet(ids...)
	out := []Symptom{}
	for _, sym := range catalog {
		if want.Contains(sym.ID) {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) GetSession(ctx context.Context, sessionID, patientID uuid.UUID) (*Session, error) {
	return s.sessions.GetForPatient(ctx, sessionID, patientID)
}

func (s *Service) ListSessions(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	return s.sessions.ListByPatient(ctx, patientID, limit, offset)
}

// -- Catalog --

func (s *Service) ListSymptoms(ctx context.Context) ([]Symptom, error) {
	return s.symptoms.List(ctx)
}

func (s *Service) CreateSymptom(ctx context.Context, sym *Symptom) error {
	if sym.Name == "" {
		return invalidf("name is required")
	}
	if sym.Severity < 1 || sym.Severity > 10 {
		return invalidf("severity must be between 1 and 10")
	}
	if sym.RiskTier == "" {
		sym.RiskTier = TierLow
	}
	if !sym.RiskTier.Valid() {
		return invalidf("invalid risk_level %q", sym.RiskTier)
	}
	return s.symptoms.Create(ctx, sym)
}

func (s *Service) ListRedFlags(ctx context.Context) ([]RedFlag, error) {
	return s.redFlags.List(ctx)
}

func (s *Service) CreateRedFlag(ctx context.Context, rf *RedFlag) error {
	if rf.Name == "" {
		return invalidf("name is required")
	}
	if !rf.TriggerAction.Valid() {
		return invalidf("invalid trigger_action %q", rf.TriggerAction)
	}
	if rf.Priority == 0 {
		rf.Priority = 1
	}
	combo := NewSymptomSet(rf.SymptomCombination...)
	if combo.Len() == 0 {
		return invalidf("symptom_combination is required")
	}
	known, err := s.symptoms.Resolve(ctx, combo.IDs())
	if err != nil {
		return err
	}
	if len(known) != combo.Len() {
		return fmt.Errorf("symptom_combination references an unknown symptom: %w", ErrNotFound)
	}
	rf.SymptomCombination = combo.IDs()
	return s.redFlags.Create(ctx, rf)
}
