package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/triage/internal/platform/db"
)

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository { return &sessionRepoPG{pool: pool} }

const sessionCols = `id, patient_id, symptoms_reported, status, risk_score, triage_result,
	created_at, completed_at, updated_at, symptoms_analyzed, red_flags_triggered`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var symptomsJSON, analyzedJSON, triggeredJSON []byte
	var status string
	var result *string
	err := row.Scan(&s.ID, &s.PatientID, &symptomsJSON, &status, &s.RiskScore, &result,
		&s.CreatedAt, &s.CompletedAt, &s.UpdatedAt, &analyzedJSON, &triggeredJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("triage session: %w", ErrNotFound)
		}
		return nil, err
	}
	s.Status = Status(status)
	if result != nil {
		a := Action(*result)
		s.TriageResult = &a
	}
	if len(symptomsJSON) > 0 {
		if err := json.Unmarshal(symptomsJSON, &s.SymptomsReported); err != nil {
			return nil, fmt.Errorf("unmarshal symptoms_reported: %w", err)
		}
	}
	if len(analyzedJSON) > 0 {
		if err := json.Unmarshal(analyzedJSON, &s.SymptomsAnalyzed); err != nil {
			return nil, fmt.Errorf("unmarshal symptoms_analyzed: %w", err)
		}
	}
	if len(triggeredJSON) > 0 {
		if err := json.Unmarshal(triggeredJSON, &s.RedFlagsTriggered); err != nil {
			return nil, fmt.Errorf("unmarshal red_flags_triggered: %w", err)
		}
	}
	return &s, nil
}

func (r *sessionRepoPG) FindActive(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM triage_sessions
		WHERE patient_id = $1 AND status = 'in_progress'`, patientID))
	return s, storageFault("find active session", err)
}

func (r *sessionRepoPG) CreateActive(ctx context.Context, s *Session) (*Session, error) {
	symptomsJSON, err := json.Marshal(s.SymptomsReported)
	if err != nil {
		return nil, err
	}
	created, err := scanSession(r.pool.QueryRow(ctx, `
		INSERT INTO triage_sessions (id, patient_id, symptoms_reported, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (patient_id) WHERE status = 'in_progress' DO NOTHING
		RETURNING `+sessionCols,
		s.ID, s.PatientID, symptomsJSON, string(StatusInProgress), s.CreatedAt))
	if errors.Is(err, ErrNotFound) {
		// Lost the race; the winner's row is the active session.
		return r.FindActive(ctx, s.PatientID)
	}
	return created, storageFault("create session", err)
}

func (r *sessionRepoPG) GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM triage_sessions
		WHERE id = $1 AND patient_id = $2`, id, patientID))
	return s, storageFault("get session", err)
}

func (r *sessionRepoPG) Mutate(ctx context.Context, id, patientID uuid.UUID, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM triage_sessions
			WHERE id = $1 AND patient_id = $2 FOR UPDATE`, id, patientID))
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			if errors.Is(err, ErrNoChange) {
				out = s
				return nil
			}
			return err
		}
		symptomsJSON, err := json.Marshal(s.SymptomsReported)
		if err != nil {
			return err
		}
		analyzedJSON, err := snapshotJSON(s.SymptomsAnalyzed, s.IsCompleted())
		if err != nil {
			return err
		}
		triggeredJSON, err := snapshotJSON(s.RedFlagsTriggered, s.IsCompleted())
		if err != nil {
			return err
		}
		var result *string
		if s.TriageResult != nil {
			v := string(*s.TriageResult)
			result = &v
		}
		out, err = scanSession(tx.QueryRow(ctx, `
			UPDATE triage_sessions SET symptoms_reported=$2, status=$3, risk_score=$4,
				triage_result=$5, completed_at=$6, symptoms_analyzed=$7, red_flags_triggered=$8,
				updated_at=NOW()
			WHERE id = $1
			RETURNING `+sessionCols,
			s.ID, symptomsJSON, string(s.Status), s.RiskScore, result, s.CompletedAt,
			analyzedJSON, triggeredJSON))
		return err
	})
	if err != nil {
		return nil, storageFault("update session", err)
	}
	return out, nil
}

// snapshotJSON encodes a finalize snapshot. In-progress sessions store NULL.
func snapshotJSON(v interface{}, completed bool) ([]byte, error) {
	if !completed {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *sessionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Session, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM triage_sessions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, storageFault("count sessions", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionCols+` FROM triage_sessions
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, storageFault("list sessions", err)
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, storageFault("scan session", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageFault("list sessions", err)
	}
	return items, total, nil
}

// =========== Symptom Catalog ===========

type symptomRepoPG struct{ pool *pgxpool.Pool }

func NewSymptomRepoPG(pool *pgxpool.Pool) SymptomCatalog { return &symptomRepoPG{pool: pool} }

const symptomCols = `id, name, description, severity, risk_level, body_system, created_at`

func scanSymptom(row pgx.Row) (*Symptom, error) {
	var s Symptom
	var tier string
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Severity, &tier, &s.BodySystem, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("symptom: %w", ErrNotFound)
		}
		return nil, err
	}
	s.RiskTier = RiskTier(tier)
	return &s, nil
}

func (r *symptomRepoPG) Get(ctx context.Context, id uuid.UUID) (*Symptom, error) {
	s, err := scanSymptom(r.pool.QueryRow(ctx, `SELECT `+symptomCols+` FROM symptoms WHERE id = $1`, id))
	return s, storageFault("get symptom", err)
}

func (r *symptomRepoPG) Resolve(ctx context.Context, ids []uuid.UUID) ([]Symptom, error) {
	if len(ids) == 0 {
		return []Symptom{}, nil
	}
	return r.query(ctx, `SELECT `+symptomCols+` FROM symptoms WHERE id = ANY($1) ORDER BY name`, ids)
}

func (r *symptomRepoPG) List(ctx context.Context) ([]Symptom, error) {
	return r.query(ctx, `SELECT `+symptomCols+` FROM symptoms ORDER BY name`)
}

func (r *symptomRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]Symptom, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageFault("query symptoms", err)
	}
	defer rows.Close()
	items := []Symptom{}
	for rows.Next() {
		s, err := scanSymptom(rows)
		if err != nil {
			return nil, storageFault("scan symptom", err)
		}
		items = append(items, *s)
	}
	return items, storageFault("query symptoms", rows.Err())
}

func (r *symptomRepoPG) Create(ctx context.Context, s *Symptom) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO symptoms (id, name, description, severity, risk_level, body_system)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		s.ID, s.Name, s.Description, s.Severity, string(s.RiskTier), s.BodySystem).Scan(&s.CreatedAt)
	if db.IsUniqueViolation(err, "symptoms_name_key") {
		return fmt.Errorf("symptom %q: %w", s.Name, ErrConflict)
	}
	return storageFault("create symptom", err)
}

// =========== Red Flag Catalog ===========

type redFlagRepoPG struct{ pool *pgxpool.Pool }

func NewRedFlagRepoPG(pool *pgxpool.Pool) RedFlagCatalog { return &redFlagRepoPG{pool: pool} }

const redFlagCols = `id, name, symptom_combination, trigger_action, description, priority, created_at`

func scanRedFlag(row pgx.Row) (*RedFlag, error) {
	var rf RedFlag
	var combo []byte
	var action string
	if err := row.Scan(&rf.ID, &rf.Name, &combo, &action, &rf.Description, &rf.Priority, &rf.CreatedAt); err != nil {
		return nil, err
	}
	rf.TriggerAction = Action(action)
	if err := json.Unmarshal(combo, &rf.SymptomCombination); err != nil {
		return nil, fmt.Errorf("unmarshal symptom_combination: %w", err)
	}
	return &rf, nil
}

func (r *redFlagRepoPG) List(ctx context.Context) ([]RedFlag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+redFlagCols+` FROM red_flags
		ORDER BY priority DESC, created_at, id`)
	if err != nil {
		return nil, storageFault("list red flags", err)
	}
	defer rows.Close()
	items := []RedFlag{}
	for rows.Next() {
		rf, err := scanRedFlag(rows)
		if err != nil {
			return nil, storageFault("scan red flag", err)
		}
		items = append(items, *rf)
	}
	return items, storageFault("list red flags", rows.Err())
}

func (r *redFlagRepoPG) Create(ctx context.Context, rf *RedFlag) error {
	if rf.ID == uuid.Nil {
		rf.ID = uuid.New()
	}
	combo, err := json.Marshal(rf.SymptomCombination)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO red_flags (id, name, symptom_combination, trigger_action, description, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rf.ID, rf.Name, combo, string(rf.TriggerAction), rf.Description, rf.Priority).Scan(&rf.CreatedAt)
	return storageFault("create red flag", err)
}
