package sigil

import (
	"slices"
	"time"
)

// transitions maps each status to its legal destinations.
// Self-transitions are never legal. spent has no exits.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusComplete},
	StatusComplete: {StatusResting},
	StatusResting:  {StatusAwakened, StatusComplete},
	StatusAwakened: {StatusCharged, StatusSpent, StatusResting},
	StatusCharged:  {StatusSpent, StatusAwakened},
	StatusSpent:    {},
}

// AllowedTransitions returns the legal destinations from a status.
// Unknown statuses have none. The returned slice is a copy.
func AllowedTransitions(from Status) []Status {
	return slices.Clone(transitions[from])
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns s moved to the target status, stamped at now.
//
// Fails with an InvalidTransition LifecycleError when the edge is not in the
// table, which covers self-transitions and anything out of spent. The input
// sigil is not modified. StatusChangedAt never moves backwards: a now earlier
// than the previous change keeps the previous stamp.
func Transition(s Sigil, to Status, now time.Time) (Sigil, error) {
	if !CanTransition(s.Status, to) {
		return s, NewInvalidTransitionError(s.ID, s.Status, to)
	}
	s.Status = to
	if now.After(s.StatusChangedAt) {
		s.StatusChangedAt = now
	}
	return s, nil
}
