package triage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/db"
)

// These tests run against a real Postgres when DATABASE_URL is set. Each test
// gets its own schema, migrated from ./migrations and dropped afterwards.

type pgFixture struct {
	pool *pgxpool.Pool
	svc  *Service

	headache  Symptom
	fever     Symptom
	chestPain Symptom
	dyspnea   Symptom
}

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	// internal/domain/triage -> module root
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := "triage_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: url, MaxConns: 8, MinConns: 1, Schema: schema})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		pool.Close()
	})

	if _, err := db.NewMigrator(pool, os.DirFS(migrationsDir()), schema, zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &pgFixture{
		pool: pool,
		svc:  NewService(NewSessionRepoPG(pool), NewSymptomRepoPG(pool), NewRedFlagRepoPG(pool)),
	}
	for _, s := range []*Symptom{
		{Name: "Headache", Severity: 3, RiskTier: TierLow},
		{Name: "Fever", Severity: 5, RiskTier: TierMedium},
		{Name: "Chest pain", Severity: 9, RiskTier: TierCritical},
		{Name: "Shortness of breath", Severity: 8, RiskTier: TierHigh},
	} {
		if err := f.svc.CreateSymptom(ctx, s); err != nil {
			t.Fatalf("create symptom %s: %v", s.Name, err)
		}
	}
	all, err := f.svc.ListSymptoms(ctx)
	if err != nil {
		t.Fatalf("list symptoms: %v", err)
	}
	byName := make(map[string]Symptom, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	f.headache, f.fever = byName["Headache"], byName["Fever"]
	f.chestPain, f.dyspnea = byName["Chest pain"], byName["Shortness of breath"]

	rf := &RedFlag{
		Name:               "Cardiac event",
		TriggerAction:      ActionEmergency,
		Priority:           10,
		SymptomCombination: []uuid.UUID{f.chestPain.ID, f.dyspnea.ID},
	}
	if err := f.svc.CreateRedFlag(ctx, rf); err != nil {
		t.Fatalf("create red flag: %v", err)
	}
	return f
}

func TestSessionRepoPG_StartSession_Concurrent(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	patient := uuid.New()

	const n = 6
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.svc.StartSession(ctx, patient)
			if err != nil {
				t.Errorf("start session: %v", err)
				return
			}
			ids[i] = s.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("expected a single session id, got %v", ids)
		}
	}
	var active int
	if err := f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM triage_sessions
		WHERE patient_id = $1 AND status = 'in_progress'`, patient).Scan(&active); err != nil {
		t.Fatalf("count: %v", err)
	}
	if active != 1 {
		t.Errorf("expected 1 active row, got %d", active)
	}
}

func TestSessionRepoPG_AddSymptom_Concurrent(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	patient := uuid.New()
	s, err := f.svc.StartSession(ctx, patient)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	ids := []uuid.UUID{f.headache.ID, f.fever.ID, f.chestPain.ID, f.dyspnea.ID}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := f.svc.AddSymptom(ctx, s.ID, patient, id); err != nil {
				t.Errorf("add %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	stored, err := f.svc.GetSession(ctx, s.ID, patient)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.SymptomsReported.Len() != len(ids) {
		t.Errorf("expected %d symptoms, got %v", len(ids), stored.SymptomsReported.IDs())
	}
	for _, id := range ids {
		if !stored.SymptomsReported.Contains(id) {
			t.Errorf("lost symptom %s", id)
		}
	}
}

func TestSessionRepoPG_SymptomOrderRoundTrip(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	patient := uuid.New()
	s, _ := f.svc.StartSession(ctx, patient)

	order := []uuid.UUID{f.dyspnea.ID, f.headache.ID, f.fever.ID}
	for _, id := range order {
		if _, err := f.svc.AddSymptom(ctx, s.ID, patient, id); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := f.svc.AddSymptom(ctx, s.ID, patient, f.headache.ID); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}

	stored, _ := f.svc.GetSession(ctx, s.ID, patient)
	got := stored.SymptomsReported.IDs()
	if len(got) != len(order) {
		t.Fatalf("expected %d ids, got %v", len(order), got)
	}
	for i := range order {
		if got[i] != order[i] {
			t.Errorf("position %d: expected %s, got %s", i, order[i], got[i])
		}
	}
}

func TestSessionRepoPG_AddSymptomRacesFinalize(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		patient := uuid.New()
		s, _ := f.svc.StartSession(ctx, patient)
		if _, err := f.svc.AddSymptom(ctx, s.ID, patient, f.headache.ID); err != nil {
			t.Fatalf("add: %v", err)
		}

		var addErr, finErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, addErr = f.svc.AddSymptom(ctx, s.ID, patient, f.fever.ID)
		}()
		go func() {
			defer wg.Done()
			_, finErr = f.svc.FinalizeSession(ctx, s.ID, patient)
		}()
		wg.Wait()

		if finErr != nil {
			t.Fatalf("finalize: %v", finErr)
		}
		stored, _ := f.svc.GetSession(ctx, s.ID, patient)
		if !stored.IsCompleted() {
			t.Fatal("expected completed session")
		}
		analyzed := make(map[uuid.UUID]bool)
		for _, sym := range stored.SymptomsAnalyzed {
			analyzed[sym.ID] = true
		}

		switch {
		case addErr == nil:
			if !stored.SymptomsReported.Contains(f.fever.ID) || !analyzed[f.fever.ID] {
				t.Errorf("round %d: accepted symptom missing from the scored session", round)
			}
		case errors.Is(addErr, ErrInvalidState):
			if stored.SymptomsReported.Contains(f.fever.ID) || analyzed[f.fever.ID] {
				t.Errorf("round %d: rejected symptom present in the completed session", round)
			}
		default:
			t.Fatalf("round %d: unexpected add error %v", round, addErr)
		}
	}
}

func TestSessionRepoPG_FinalizeReplay(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	patient := uuid.New()
	s, _ := f.svc.StartSession(ctx, patient)
	f.svc.AddSymptom(ctx, s.ID, patient, f.chestPain.ID)
	f.svc.AddSymptom(ctx, s.ID, patient, f.dyspnea.ID)

	first, err := f.svc.FinalizeSession(ctx, s.ID, patient)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if *first.Session.TriageResult != ActionEmergency {
		t.Errorf("expected ER, got %s", *first.Session.TriageResult)
	}

	// Catalog changes after completion do not reach the stored outcome.
	if _, err := f.pool.Exec(ctx, `DELETE FROM red_flags`); err != nil {
		t.Fatalf("clear red flags: %v", err)
	}

	second, err := f.svc.FinalizeSession(ctx, s.ID, patient)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Session.CompletedAt.Equal(*first.Session.CompletedAt) {
		t.Errorf("completed_at changed: %s -> %s", first.Session.CompletedAt, second.Session.CompletedAt)
	}
	if *second.Session.RiskScore != *first.Session.RiskScore {
		t.Errorf("score changed: %v -> %v", *first.Session.RiskScore, *second.Session.RiskScore)
	}
	if len(second.Matched) != 1 || second.Matched[0].Name != "Cardiac event" {
		t.Errorf("expected stored cardiac rule, got %+v", second.Matched)
	}
	if len(second.Symptoms) != 2 {
		t.Errorf("expected 2 stored symptoms, got %d", len(second.Symptoms))
	}
}

func TestSessionRepoPG_Constraints(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	patient := uuid.New()
	s, _ := f.svc.StartSession(ctx, patient)

	_, err := f.pool.Exec(ctx, `INSERT INTO triage_sessions (id, patient_id) VALUES ($1, $2)`, uuid.New(), patient)
	if !db.IsUniqueViolation(err, "idx_triage_sessions_active") {
		t.Errorf("expected active-session unique violation, got %v", err)
	}

	_, err = f.pool.Exec(ctx, `UPDATE triage_sessions SET status = 'completed' WHERE id = $1`, s.ID)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23514" {
		t.Errorf("expected check violation for completed session without a score, got %v", err)
	}
}
