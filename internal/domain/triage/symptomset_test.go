package triage

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymptomSet_AddKeepsInsertionOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	var s SymptomSet

	assert.True(t, s.Add(b))
	assert.True(t, s.Add(a))
	assert.False(t, s.Add(b))
	assert.True(t, s.Add(c))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []uuid.UUID{b, a, c}, s.IDs())
	assert.True(t, s.Contains(a))
	assert.False(t, s.Contains(uuid.New()))
}

func TestSymptomSet_IDsIsACopy(t *testing.T) {
	s := NewSymptomSet(uuid.New())
	ids := s.IDs()
	ids[0] = uuid.Nil
	assert.NotEqual(t, uuid.Nil, s.IDs()[0])
}

func TestSymptomSet_ContainsAll(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	s := NewSymptomSet(a, b)

	assert.True(t, s.ContainsAll(nil))
	assert.True(t, s.ContainsAll([]uuid.UUID{b}))
	assert.True(t, s.ContainsAll([]uuid.UUID{b, a}))
	assert.False(t, s.ContainsAll([]uuid.UUID{a, uuid.New()}))
}

func TestSymptomSet_JSON(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	var empty SymptomSet
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	var s SymptomSet
	in := `["` + a.String() + `","` + b.String() + `","` + a.String() + `"]`
	require.NoError(t, json.Unmarshal([]byte(in), &s))
	assert.Equal(t, []uuid.UUID{a, b}, s.IDs())

	assert.Error(t, json.Unmarshal([]byte(`["not-a-uuid"]`), &s))
}
