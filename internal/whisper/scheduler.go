package whisper

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// BaseInterval is the gap between whispers at zero corruption.
	BaseInterval = 5 * time.Minute

	// MinInterval is the floor; it dominates once level exceeds 0.9.
	MinInterval = 30 * time.Second

	// SpeakerChance is the probability a whisper is attributed to a bound name.
	SpeakerChance = 0.3
)

// Interval returns max(MinInterval, BaseInterval*(1-level)).
// level is clamped into [0,1] first.
func Interval(level float64) time.Duration {
	level = max(0, min(1, level))
	return max(MinInterval, time.Duration(float64(BaseInterval)*(1-level)))
}

// Due reports whether a whisper should fire at now. A zero lastWhisperAt
// means none has fired yet.
func Due(now, lastWhisperAt time.Time, level float64) bool {
	if lastWhisperAt.IsZero() {
		return true
	}
	return now.Sub(lastWhisperAt) >= Interval(level)
}

// Intensity is the message tier.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// IntensityFor buckets a level: < 0.50 low, < 0.80 medium, otherwise high.
func IntensityFor(level float64) Intensity {
	switch {
	case level >= 0.80:
		return IntensityHigh
	case level >= 0.50:
		return IntensityMedium
	default:
		return IntensityLow
	}
}

// Whisper is a transient message. Speaker is empty when unattributed.
type Whisper struct {
	Text      string    `json:"text"`
	Intensity Intensity `json:"intensity"`
	Speaker   string    `json:"speaker,omitempty"`
}

// String renders the whisper with its speaker prefix, if any.
func (w Whisper) String() string {
	if w.Speaker == "" {
		return w.Text
	}
	return w.Speaker + ": " + w.Text
}

// Generator samples whispers from a set of pools.
type Generator struct {
	pools Pools
	rand  RandomSource
}

// NewGenerator creates a generator. Missing or empty tiers fall back to
// DefaultPools; a nil source uses DefaultSource.
func NewGenerator(pools Pools, src RandomSource) *Generator {
	if src == nil {
		src = DefaultSource
	}
	return &Generator{pools: pools.withDefaults(), rand: src}
}

// Generate picks a message from the tier for level. With probability
// SpeakerChance, and only when boundNames is non-empty, the message is
// attributed to one of boundNames chosen uniformly.
func (g *Generator) Generate(level float64, boundNames []string) Whisper {
	intensity := IntensityFor(level)
	pool := g.pools.For(intensity)

	w := Whisper{
		Text:      pool[pick(g.rand, len(pool))],
		Intensity: intensity,
	}
	if len(boundNames) > 0 && g.rand() < SpeakerChance {
		w.Speaker = norm.NFC.String(boundNames[pick(g.rand, len(boundNames))])
	}
	return w
}

// Generate samples with the default pools.
func Generate(level float64, boundNames []string, src RandomSource) Whisper {
	return NewGenerator(Pools{}, src).Generate(level, boundNames)
}

// pick maps a uniform [0,1) draw onto an index in [0,n).
func pick(src RandomSource, n int) int {
	i := int(src() * float64(n))
	return max(0, min(n-1, i))
}
