package triage

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SymptomSet is a set of symptom ids that remembers insertion order for
// display. Scoring never looks at the order.
type SymptomSet struct {
	ids   []uuid.UUID
	index map[uuid.UUID]struct{}
}

func NewSymptomSet(ids ...uuid.UUID) SymptomSet {
	var s SymptomSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether the set changed.
func (s *SymptomSet) Add(id uuid.UUID) bool {
	if s.index == nil {
		s.index = make(map[uuid.UUID]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s SymptomSet) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

func (s SymptomSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the members in insertion order.
func (s SymptomSet) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.ids))
	copy(out, s.ids)
	return out
}

// ContainsAll reports whether every id in sub is a member. An empty sub is
// always contained.
func (s SymptomSet) ContainsAll(sub []uuid.UUID) bool {
	for _, id := range sub {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

func (s SymptomSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *SymptomSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSymptomSet(ids...)
	return nil
}
