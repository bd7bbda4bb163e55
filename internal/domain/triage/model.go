package triage

import (
	"time"

	"github.com/google/uuid"
)

// RiskTier is the coarse severity class attached to a catalog symptom.
type RiskTier string

const (
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// Weight returns the scoring multiplier for the tier. Unknown tiers weigh 1.
func (t RiskTier) Weight() float64 {
	switch t {
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 5
	default:
		return 1
	}
}

func (t RiskTier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh, TierCritical:
		return true
	}
	return false
}

// Action is the recommended disposition.
type Action string

const (
	ActionEmergency Action = "ER"
	ActionClinic    Action = "Clinic"
	ActionHome      Action = "Home"
)

func (a Action) Valid() bool {
	switch a {
	case ActionEmergency, ActionClinic, ActionHome:
		return true
	}
	return false
}

var recommendations = map[Action]string{
	ActionEmergency: "Seek emergency medical attention immediately. Go to the nearest emergency room.",
	ActionClinic:    "Schedule an appointment with a healthcare provider within 24-48 hours.",
	ActionHome:      "Monitor your symptoms at home. Rest and stay hydrated. Seek care if symptoms worsen.",
}

// Recommendation returns the patient-facing advice for the action.
func (a Action) Recommendation() string {
	return recommendations[a]
}

// Status is the lifecycle state of a triage session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Symptom maps to the symptoms table.
type Symptom struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Severity    int       `db:"severity" json:"severity"`
	RiskTier    RiskTier  `db:"risk_level" json:"risk_level"`
	BodySystem  *string   `db:"body_system" json:"body_system,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RedFlag maps to the red_flags table. The rule fires when every id in
// SymptomCombination was reported.
type RedFlag struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	Name               string      `db:"name" json:"name"`
	SymptomCombination []uuid.UUID `db:"symptom_combination" json:"symptom_combination"`
	TriggerAction      Action      `db:"trigger_action" json:"trigger_action"`
	Description        *string     `db:"description" json:"description,omitempty"`
	Priority           int         `db:"priority" json:"priority"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// Session maps to the triage_sessions table.
type Session struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	SymptomsReported SymptomSet `db:"symptoms_reported" json:"symptoms_reported"`
	Status           Status     `db:"status" json:"status"`
	RiskScore        *float64   `db:"risk_score" json:"risk_score,omitempty"`
	TriageResult     *Action    `db:"triage_result" json:"triage_result,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	// Snapshot of the catalog entries used at finalize time. Replays read
	// these instead of the live catalog.
	SymptomsAnalyzed  []Symptom `db:"symptoms_analyzed" json:"-"`
	RedFlagsTriggered []RedFlag `db:"red_flags_triggered" json:"-"`
}

func (s *Session) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// complete stamps the assessment onto the session. It is the only transition
// out of in_progress.
func (s *Session) complete(a Assessment, at time.Time) error {
	if s.IsCompleted() {
		return ErrInvalidState
	}
	score := a.RiskScore
	action := a.Action
	s.Status = StatusCompleted
	s.RiskScore = &score
	s.TriageResult = &action
	s.CompletedAt = &at
	s.SymptomsAnalyzed = a.Symptoms
	s.RedFlagsTriggered = a.Matched
	return nil
}

// result builds the finalize outcome from the stored snapshot.
func (s *Session) result() *Result {
	res := &Result{Session: s, Symptoms: s.SymptomsAnalyzed, Matched: s.RedFlagsTriggered}
	if res.Symptoms == nil {
		res.Symptoms = []Symptom{}
	}
	if res.Matched == nil {
		res.Matched = []RedFlag{}
	}
	return res
}

// Result is the outcome of finalizing a session.
type Result struct {
	Session  *Session
	Symptoms []Symptom
	Matched  []RedFlag
}
