package whisper

import "fmt"

// Pools holds the message text for each intensity tier.
type Pools struct {
	Low    []string `json:"low,omitempty"`
	Medium []string `json:"medium,omitempty"`
	High   []string `json:"high,omitempty"`
}

// DefaultPools is the stock content, eight lines per tier.
var DefaultPools = Pools{
	Low: []string{
		"Did you hear that?",
		"Something is watching the circle.",
		"The ink remembers your hand.",
		"Not every line you drew was yours.",
		"Count the candles again.",
		"It is quieter than it should be.",
		"You left a gap in the seal.",
		"Someone said your name.",
	},
	Medium: []string{
		"We know where you sleep.",
		"The seal is thinner than you think.",
		"Your shadow moved before you did.",
		"Every pact leaves a mark. Check your wrists.",
		"Stop drawing. We are already here.",
		"You owe more than you remember.",
		"The door you opened does not close.",
		"Listen. Under the floor.",
	},
	High: []string{
		"THERE IS NO CIRCLE LEFT TO HIDE IN.",
		"You are the vessel now.",
		"Your hands are ours.",
		"Speak with our voice.",
		"The last seal is you.",
		"We wear you well.",
		"Nothing of you remains that we did not allow.",
		"Open your eyes. Open them wider.",
	},
}

// For returns the pool for a tier.
func (p Pools) For(i Intensity) []string {
	switch i {
	case IntensityHigh:
		return p.High
	case IntensityMedium:
		return p.Medium
	default:
		return p.Low
	}
}

// Validate rejects tiers that are present but empty.
func (p Pools) Validate() error {
	for name, pool := range map[string][]string{"low": p.Low, "medium": p.Medium, "high": p.High} {
		if pool != nil && len(pool) == 0 {
			return fmt.Errorf("whisper pool %q is empty", name)
		}
	}
	return nil
}

func (p Pools) withDefaults() Pools {
	if len(p.Low) == 0 {
		p.Low = DefaultPools.Low
	}
	if len(p.Medium) == 0 {
		p.Medium = DefaultPools.Medium
	}
	if len(p.High) == 0 {
		p.High = DefaultPools.High
	}
	return p
}
