package testutil

import "sync"

// ScriptedSource replays a fixed sequence of [0,1) values, wrapping around
// when exhausted. An empty script always yields 0.
//
// Thread-safety: Next is safe for concurrent use via internal mutex.
type ScriptedSource struct {
	mu     sync.Mutex
	values []float64
	idx    int
	calls  int
}

// NewScriptedSource creates a source that yields values in order.
func NewScriptedSource(values ...float64) *ScriptedSource {
	return &ScriptedSource{values: values}
}

// Next returns the next scripted value. Its signature matches
// whisper.RandomSource, so s.Next can be passed directly.
func (s *ScriptedSource) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.idx]
	s.idx = (s.idx + 1) % len(s.values)
	return v
}

// Calls reports how many values have been drawn.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
