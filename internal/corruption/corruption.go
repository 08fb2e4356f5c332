// Package corruption tracks the process-wide corruption meter.
//
// Level only rises: Add clamps into [0,1] and ignores negative magnitudes.
// Stage is always derived from Level, never stored independently of it.
// A decay policy would be a separate operation with its own rules; there is
// none here.
package corruption

import (
	"slices"
	"time"
)

// Stage is the discrete band a corruption level falls in.
type Stage string

const (
	StageClean       Stage = "clean"
	StageTainted     Stage = "tainted"
	StageCompromised Stage = "compromised"
	StageVessel      Stage = "vessel"
)

// Stage lower bounds.
const (
	TaintedThreshold     = 0.25
	CompromisedThreshold = 0.50
	VesselThreshold      = 0.80
	FullVesselThreshold  = 1.0
)

// StageFor maps a level to its stage.
func StageFor(level float64) Stage {
	switch {
	case level >= VesselThreshold:
		return StageVessel
	case level >= CompromisedThreshold:
		return StageCompromised
	case level >= TaintedThreshold:
		return StageTainted
	default:
		return StageClean
	}
}

// Well-known origins. Callers may use any other string.
const (
	OriginRitual   = "ritual"
	OriginPact     = "pact"
	OriginWhisper  = "whisper"
	OriginBacklash = "backlash"
	OriginCollapse = "collapse"
)

// Source is one contribution to the meter.
type Source struct {
	Magnitude float64   `json:"magnitude"`
	Origin    string    `json:"origin"`
	At        time.Time `json:"at"`
}

// State is the accumulator value. The zero value is a clean state.
type State struct {
	Level   float64  `json:"level"`
	Stage   Stage    `json:"stage"`
	History []Source `json:"history,omitempty"`
}

// New returns an empty, clean state.
func New() State {
	return State{Stage: StageClean}
}

// Add returns a new state with the source applied. The receiver's history is
// not shared with the result. Sources with a non-positive or NaN magnitude
// change nothing and are not recorded.
func (s State) Add(src Source) State {
	if !(src.Magnitude > 0) {
		return State{Level: s.Level, Stage: StageFor(s.Level), History: slices.Clip(s.History)}
	}
	level := clamp(s.Level + src.Magnitude)

	return State{
		Level:   level,
		Stage:   StageFor(level),
		History: append(slices.Clip(s.History), src),
	}
}

// IsVessel reports level >= 0.80.
func (s State) IsVessel() bool {
	return s.Level >= VesselThreshold
}

// IsFullyVessel reports full saturation, level >= 1.0.
func (s State) IsFullyVessel() bool {
	return s.Level >= FullVesselThreshold
}

// Total sums recorded magnitudes per origin.
func (s State) Total(origin string) float64 {
	var sum float64
	for _, src := range s.History {
		if src.Origin == origin {
			sum += src.Magnitude
		}
	}
	return sum
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
