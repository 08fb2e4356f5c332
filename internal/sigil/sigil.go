package sigil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a sigil lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusComplete Status = "complete"
	StatusResting  Status = "resting"
	StatusAwakened Status = "awakened"
	StatusCharged  Status = "charged"
	StatusSpent    Status = "spent"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusComplete,
	StatusResting,
	StatusAwakened,
	StatusCharged,
	StatusSpent,
}

// ParseStatus converts a string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown sigil status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Sigil is a player-composed artifact bound to one demonic entity.
type Sigil struct {
	ID      string
	DemonID string

	// SealIntegrity is the quality of the drawn containment shape, 0..1.
	SealIntegrity float64

	// OverallIntegrity is the composite score used for the hold window, 0..1.
	OverallIntegrity float64

	Status          Status
	CreatedAt       time.Time
	StatusChangedAt time.Time

	// Extra holds fields owned by the drawing subsystem (geometry,
	// connections, glyph data). Never interpreted here.
	Extra map[string]json.RawMessage
}

// NewID returns a time-sortable UUIDv7 sigil identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New creates a draft sigil with a fresh identifier.
func New(demonID string, sealIntegrity, overallIntegrity float64, now time.Time) Sigil {
	return Sigil{
		ID:               NewID(),
		DemonID:          demonID,
		SealIntegrity:    sealIntegrity,
		OverallIntegrity: overallIntegrity,
		Status:           StatusDraft,
		CreatedAt:        now,
		StatusChangedAt:  now,
	}
}

// Validate checks identifiers, integrity bounds and status.
func (s Sigil) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sigil id is required")
	}
	if s.DemonID == "" {
		return fmt.Errorf("sigil %s: demon id is required", s.ID)
	}
	if !inUnitRange(s.SealIntegrity) {
		return fmt.Errorf("sigil %s: seal integrity %v out of range [0,1]", s.ID, s.SealIntegrity)
	}
	if !inUnitRange(s.OverallIntegrity) {
		return fmt.Errorf("sigil %s: overall integrity %v out of range [0,1]", s.ID, s.OverallIntegrity)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("sigil %s: unknown status %q", s.ID, s.Status)
	}
	return nil
}

// inUnitRange is false for NaN.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// Wire keys for the persisted sigil shape. Timestamps are unix milliseconds.
const (
	keyID               = "id"
	keyDemonID          = "demonId"
	keySealIntegrity    = "sealIntegrity"
	keyOverallIntegrity = "overallIntegrity"
	keyStatus           = "status"
	keyCreatedAt        = "createdAt"
	keyStatusChangedAt  = "statusChangedAt"
)

// MarshalJSON writes the known fields alongside the opaque Extra fields.
// Known keys win over Extra entries with the same name.
func (s Sigil) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+7)
	for k, v := range s.Extra {
		m[k] = v
	}
	m[keyID] = s.ID
	m[keyDemonID] = s.DemonID
	m[keySealIntegrity] = s.SealIntegrity
	m[keyOverallIntegrity] = s.OverallIntegrity
	m[keyStatus] = s.Status
	m[keyCreatedAt] = s.CreatedAt.UnixMilli()
	m[keyStatusChangedAt] = s.StatusChangedAt.UnixMilli()
	return json.Marshal(m)
}

// UnmarshalJSON reads the known fields and keeps everything else in Extra.
func (s *Sigil) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal sigil: %w", err)
	}

	var out Sigil
	var createdAt, changedAt int64
	fields := []struct {
		key string
		dst any
	}{
		{keyID, &out.ID},
		{keyDemonID, &out.DemonID},
		{keySealIntegrity, &out.SealIntegrity},
		{keyOverallIntegrity, &out.OverallIntegrity},
		{keyStatus, &out.Status},
		{keyCreatedAt, &createdAt},
		{keyStatusChangedAt, &changedAt},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("unmarshal sigil field %s: %w", f.key, err)
		}
		delete(raw, f.key)
	}
	out.CreatedAt = time.UnixMilli(createdAt).UTC()
	out.StatusChangedAt = time.UnixMilli(changedAt).UTC()
	if len(raw) > 0 {
		out.Extra = raw
	}

	*s = out
	return nil
}
