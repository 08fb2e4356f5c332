package whisper

import "math/rand/v2"

// RandomSource returns a uniform value in [0,1).
type RandomSource func() float64

// DefaultSource draws from the runtime's automatically seeded generator.
var DefaultSource RandomSource = rand.Float64

// NewSeededSource returns a reproducible source.
func NewSeededSource(seed uint64) RandomSource {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return r.Float64
}
