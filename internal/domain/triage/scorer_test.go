package triage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sym(severity int, tier RiskTier) Symptom {
	return Symptom{ID: uuid.New(), Name: "s", Severity: severity, RiskTier: tier}
}

func rule(name string, action Action, priority int, ids ...uuid.UUID) RedFlag {
	return RedFlag{ID: uuid.New(), Name: name, TriggerAction: action, Priority: priority, SymptomCombination: ids}
}

func TestScore_Empty(t *testing.T) {
	a := Score(nil, []RedFlag{rule("always", ActionEmergency, 9)})
	assert.Equal(t, 0.0, a.RiskScore)
	assert.Equal(t, ActionHome, a.Action)
	require.NotNil(t, a.Matched)
	assert.Empty(t, a.Matched)
}

func TestScore_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		symptoms []Symptom
		score    float64
		action   Action
	}{
		{"single low", []Symptom{sym(5, TierLow)}, 10, ActionHome},
		{"exactly clinic", []Symptom{sym(4, TierCritical)}, 40, ActionClinic},
		{"just below clinic", []Symptom{sym(9, TierMedium)}, 36, ActionHome},
		{"exactly emergency", []Symptom{sym(7, TierCritical)}, 70, ActionEmergency},
		{"saturated", []Symptom{sym(10, TierCritical)}, 100, ActionEmergency},
		{"high tier clinic", []Symptom{sym(8, TierHigh)}, 48, ActionClinic},
		{"unknown tier weighs one", []Symptom{sym(10, RiskTier("extreme"))}, 20, ActionHome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Score(tt.symptoms, nil)
			assert.InDelta(t, tt.score, a.RiskScore, 1e-9)
			assert.Equal(t, tt.action, a.Action)
			assert.Empty(t, a.Matched)
		})
	}
}

func TestScore_WeightedAverage(t *testing.T) {
	// (4*1 + 8*3) / 2 = 14 -> 28
	a := Score([]Symptom{sym(4, TierLow), sym(8, TierHigh)}, nil)
	assert.InDelta(t, 28.0, a.RiskScore, 1e-9)
	assert.Equal(t, ActionHome, a.Action)

	// (10*5 + 10*5 + 6*2) / 3 = 37.33 -> 74.67
	a = Score([]Symptom{sym(10, TierCritical), sym(10, TierCritical), sym(6, TierMedium)}, nil)
	assert.InDelta(t, 74.6667, a.RiskScore, 1e-3)
	assert.Equal(t, ActionEmergency, a.Action)
	assert.Equal(t, 74.67, RoundScore(a.RiskScore))
}

func TestScore_NeverExceedsBounds(t *testing.T) {
	tiers := []RiskTier{TierLow, TierMedium, TierHigh, TierCritical}
	for sev := 1; sev <= 10; sev++ {
		for _, tier := range tiers {
			a := Score([]Symptom{sym(sev, tier), sym(10, TierCritical)}, nil)
			assert.GreaterOrEqual(t, a.RiskScore, 0.0)
			assert.LessOrEqual(t, a.RiskScore, 100.0)
		}
	}
}

func TestScore_DuplicatesCountOnce(t *testing.T) {
	high := sym(10, TierCritical)
	low := sym(1, TierLow)

	once := Score([]Symptom{high, low}, nil)
	twice := Score([]Symptom{high, low, low, low}, nil)
	assert.Equal(t, once.RiskScore, twice.RiskScore)
	assert.Equal(t, once.Action, twice.Action)
}

func TestScore_OrderIndependent(t *testing.T) {
	a, b, c := sym(3, TierLow), sym(7, TierHigh), sym(9, TierMedium)
	rf := rule("ab", ActionClinic, 1, a.ID, b.ID)

	orders := [][]Symptom{{a, b, c}, {c, b, a}, {b, c, a}, {c, a, b}}
	first := Score(orders[0], []RedFlag{rf})
	for _, order := range orders[1:] {
		got := Score(order, []RedFlag{rf})
		assert.Equal(t, first.RiskScore, got.RiskScore)
		assert.Equal(t, first.Action, got.Action)
		assert.Len(t, got.Matched, 1)
	}
}

func TestScore_RedFlagOverridesScore(t *testing.T) {
	chest := sym(10, TierCritical)
	breath := sym(9, TierCritical)

	// Low-priority Home rule still beats an ER-level score.
	calm := rule("reassure", ActionHome, 1, chest.ID)
	a := Score([]Symptom{chest, breath}, []RedFlag{calm})
	assert.GreaterOrEqual(t, a.RiskScore, 70.0)
	assert.Equal(t, ActionHome, a.Action)

	// And an ER rule lifts a Home-level score.
	mild := sym(1, TierLow)
	urgent := rule("urgent", ActionEmergency, 1, mild.ID)
	a = Score([]Symptom{mild}, []RedFlag{urgent})
	assert.Less(t, a.RiskScore, 40.0)
	assert.Equal(t, ActionEmergency, a.Action)
}

func TestScore_PartialCombinationDoesNotMatch(t *testing.T) {
	chest := sym(2, TierLow)
	breath := sym(2, TierLow)
	rf := rule("cardiac", ActionEmergency, 10, chest.ID, breath.ID)

	a := Score([]Symptom{chest}, []RedFlag{rf})
	assert.Empty(t, a.Matched)
	assert.Equal(t, ActionHome, a.Action)

	a = Score([]Symptom{chest, breath}, []RedFlag{rf})
	require.Len(t, a.Matched, 1)
	assert.Equal(t, ActionEmergency, a.Action)
}

func TestScore_HighestPriorityWins(t *testing.T) {
	s := sym(5, TierMedium)
	lowPri := rule("low", ActionEmergency, 1, s.ID)
	highPri := rule("high", ActionHome, 5, s.ID)

	a := Score([]Symptom{s}, []RedFlag{lowPri, highPri})
	assert.Equal(t, ActionHome, a.Action)
	require.Len(t, a.Matched, 2)
	assert.Equal(t, "low", a.Matched[0].Name)
	assert.Equal(t, "high", a.Matched[1].Name)
}

func TestScore_PriorityTieGoesToFirst(t *testing.T) {
	s := sym(5, TierMedium)
	first := rule("first", ActionClinic, 3, s.ID)
	second := rule("second", ActionEmergency, 3, s.ID)

	assert.Equal(t, ActionClinic, Score([]Symptom{s}, []RedFlag{first, second}).Action)
	assert.Equal(t, ActionEmergency, Score([]Symptom{s}, []RedFlag{second, first}).Action)
}

func TestScore_EmptyCombinationMatches(t *testing.T) {
	s := sym(1, TierLow)
	catchAll := rule("catch-all", ActionClinic, 1)
	a := Score([]Symptom{s}, []RedFlag{catchAll})
	require.Len(t, a.Matched, 1)
	assert.Equal(t, ActionClinic, a.Action)
}

func TestScore_SingleCriticalSymptom(t *testing.T) {
	// 8*5 = 40 -> 80
	a := Score([]Symptom{sym(8, TierCritical)}, nil)
	assert.InDelta(t, 80.0, a.RiskScore, 1e-9)
	assert.Equal(t, ActionEmergency, a.Action)
	assert.Empty(t, a.Matched)
}

func TestScore_LowAndMedium(t *testing.T) {
	// (2*1 + 3*2) / 2 = 4 -> 8
	a := Score([]Symptom{sym(2, TierLow), sym(3, TierMedium)}, nil)
	assert.InDelta(t, 8.0, a.RiskScore, 1e-9)
	assert.Equal(t, ActionHome, a.Action)
	assert.Len(t, a.Symptoms, 2)
}

func TestScore_SubsetRuleOverridesHomeScore(t *testing.T) {
	s5, s7, s9 := sym(1, TierLow), sym(2, TierLow), sym(1, TierLow)
	rf := rule("pair", ActionEmergency, 2, s5.ID, s7.ID)

	a := Score([]Symptom{s5, s7, s9}, []RedFlag{rf})
	assert.Equal(t, ActionHome, ActionForScore(a.RiskScore))
	assert.Equal(t, ActionEmergency, a.Action)
	require.Len(t, a.Matched, 1)
	assert.Equal(t, rf.ID, a.Matched[0].ID)
}

func TestActionForScore(t *testing.T) {
	assert.Equal(t, ActionHome, ActionForScore(0))
	assert.Equal(t, ActionHome, ActionForScore(39.99))
	assert.Equal(t, ActionHome, ActionForScore(39.999))
	assert.Equal(t, ActionClinic, ActionForScore(40))
	assert.Equal(t, ActionClinic, ActionForScore(69.99))
	assert.Equal(t, ActionClinic, ActionForScore(69.999))
	assert.Equal(t, ActionEmergency, ActionForScore(70))
	assert.Equal(t, ActionEmergency, ActionForScore(100))
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 33.33, RoundScore(100.0/3))
	assert.Equal(t, 66.67, RoundScore(200.0/3))
	assert.Equal(t, 70.0, RoundScore(70))
}
