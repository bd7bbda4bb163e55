package triage

import (
	"math"

	"github.com/google/uuid"
)

const (
	// saturationAverage is the weighted average that maps to a score of 100.
	saturationAverage = 50.0
	maxRiskScore      = 100.0

	emergencyThreshold = 70.0
	clinicThreshold    = 40.0
)

// Assessment is the output of Score.
type Assessment struct {
	RiskScore float64
	Action    Action
	// Symptoms is the deduplicated input that was scored.
	Symptoms []Symptom
	// Matched holds every rule that fired, in catalog order.
	Matched []RedFlag
}

// Score computes the risk score for a symptom list and picks an action.
//
// Duplicate symptom ids are counted once. A matched red flag always overrides
// the score thresholds; among matched rules the highest priority wins and
// ties go to the rule that appears first in redFlags.
func Score(symptoms []Symptom, redFlags []RedFlag) Assessment {
	unique := dedupe(symptoms)
	if len(unique) == 0 {
		return Assessment{RiskScore: 0, Action: ActionHome, Symptoms: unique, Matched: []RedFlag{}}
	}

	var weighted float64
	reported := NewSymptomSet()
	for _, s := range unique {
		weighted += float64(s.Severity) * s.RiskTier.Weight()
		reported.Add(s.ID)
	}
	avg := weighted / float64(len(unique))
	score := math.Min(maxRiskScore, avg/saturationAverage*100)

	matched := []RedFlag{}
	var winner *RedFlag
	for i := range redFlags {
		rf := redFlags[i]
		if !reported.ContainsAll(rf.SymptomCombination) {
			continue
		}
		matched = append(matched, rf)
		if winner == nil || rf.Priority > winner.Priority {
			winner = &redFlags[i]
		}
	}

	action := ActionForScore(score)
	if winner != nil {
		action = winner.TriggerAction
	}
	return Assessment{RiskScore: score, Action: action, Symptoms: unique, Matched: matched}
}

// ActionForScore applies the score thresholds alone, without red flags.
func ActionForScore(score float64) Action {
	switch {
	case score >= emergencyThreshold:
		return ActionEmergency
	case score >= clinicThreshold:
		return ActionClinic
	default:
		return ActionHome
	}
}

func dedupe(symptoms []Symptom) []Symptom {
	seen := make(map[uuid.UUID]struct{}, len(symptoms))
	out := make([]Symptom, 0, len(symptoms))
	for _, s := range symptoms {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// RoundScore rounds a score to two decimals for display.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}
