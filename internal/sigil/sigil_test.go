package sigil

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsAsDraft(t *testing.T) {
	now := time.UnixMilli(42).UTC()
	s := New("paimon", 0.7, 0.9, now)

	assert.Equal(t, StatusDraft, s.Status)
	assert.Equal(t, "paimon", s.DemonID)
	assert.Equal(t, now, s.CreatedAt)
	assert.Equal(t, now, s.StatusChangedAt)

	parsed, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := NewID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseStatus("banished")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Sigil{ID: "s1", DemonID: "bael", SealIntegrity: 0.5, OverallIntegrity: 1, Status: StatusDraft}
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		mutate func(*Sigil)
	}{
		{"missing id", func(s *Sigil) { s.ID = "" }},
		{"missing demon", func(s *Sigil) { s.DemonID = "" }},
		{"seal below zero", func(s *Sigil) { s.SealIntegrity = -0.1 }},
		{"overall above one", func(s *Sigil) { s.OverallIntegrity = 1.01 }},
		{"unknown status", func(s *Sigil) { s.Status = "lost" }},
		{"nan integrity", func(s *Sigil) { s.OverallIntegrity = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSigilJSON_WireShape(t *testing.T) {
	s := Sigil{
		ID:               "s1",
		DemonID:          "bael",
		SealIntegrity:    0.75,
		OverallIntegrity: 0.9,
		Status:           StatusCharged,
		CreatedAt:        time.UnixMilli(1000).UTC(),
		StatusChangedAt:  time.UnixMilli(2000).UTC(),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "s1",
		"demonId": "bael",
		"sealIntegrity": 0.75,
		"overallIntegrity": 0.9,
		"status": "charged",
		"createdAt": 1000,
		"statusChangedAt": 2000
	}`, string(data))
}

func TestSigilJSON_PassesThroughOpaqueFields(t *testing.T) {
	in := `{
		"id": "s1",
		"demonId": "bael",
		"sealIntegrity": 0.5,
		"overallIntegrity": 0.6,
		"status": "resting",
		"createdAt": 10,
		"statusChangedAt": 20,
		"sealGeometry": {"points": [[0,1],[2,3]]},
		"connections": [{"from": "a", "to": "b"}]
	}`

	var s Sigil
	require.NoError(t, json.Unmarshal([]byte(in), &s))
	assert.Equal(t, StatusResting, s.Status)
	assert.Equal(t, time.UnixMilli(20).UTC(), s.StatusChangedAt)
	require.Contains(t, s.Extra, "sealGeometry")
	require.Contains(t, s.Extra, "connections")

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestSigilJSON_RejectsMalformedField(t *testing.T) {
	var s Sigil
	err := json.Unmarshal([]byte(`{"id": 7}`), &s)
	assert.Error(t, err)
}
