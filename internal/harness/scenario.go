package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidian-innovations/goetia-sub001/internal/corruption"
	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

// Scenario is a scripted timeline.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Random is the scripted sequence of [0,1) draws, repeated when exhausted.
	Random []float64 `yaml:"random,omitempty"`

	// Bound lists entity names whispers may be attributed to.
	Bound []string `yaml:"bound,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step performs exactly one action.
type Step struct {
	Create     *CreateStep     `yaml:"create,omitempty"`
	Transition *TransitionStep `yaml:"transition,omitempty"`
	Charge     *SigilRef       `yaml:"charge,omitempty"`
	Advance    string          `yaml:"advance,omitempty"`
	Corrupt    *CorruptStep    `yaml:"corrupt,omitempty"`
	Tick       bool            `yaml:"tick,omitempty"`
}

// SigilRef addresses a sigil through its owner's page.
type SigilRef struct {
	ID    string `yaml:"id"`
	Demon string `yaml:"demon"`
}

// CreateStep stores a new draft sigil.
type CreateStep struct {
	ID        string  `yaml:"id"`
	Demon     string  `yaml:"demon"`
	Seal      float64 `yaml:"seal"`
	Integrity float64 `yaml:"integrity"`
}

// TransitionStep requests a status change. ExpectError, when set, is the
// error class the step must fail with.
type TransitionStep struct {
	ID          string `yaml:"id"`
	Demon       string `yaml:"demon"`
	To          string `yaml:"to"`
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CorruptStep adds to the corruption meter.
type CorruptStep struct {
	Magnitude float64 `yaml:"magnitude"`
	Origin    string  `yaml:"origin"`
}

// Assertion checks final state or the trace.
type Assertion struct {
	Type   string `yaml:"type"`
	Sigil  string `yaml:"sigil,omitempty"`
	Status string `yaml:"status,omitempty"`
	Stage  string `yaml:"stage,omitempty"`
	Text   string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalStatus   = "final_status"
	AssertFinalStage    = "final_stage"
	AssertTraceContains = "trace_contains"
)

// Error classes for TransitionStep.ExpectError.
const (
	ErrClassInvalidTransition = "invalid_transition"
	ErrClassNotFound          = "not_found"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, v := range s.Random {
		if v < 0 || v >= 1 {
			return fmt.Errorf("random[%d]: %v is outside [0,1)", i, v)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	actions := 0
	if step.Create != nil {
		actions++
		if step.Create.ID == "" || step.Create.Demon == "" {
			return fmt.Errorf("create: id and demon are required")
		}
	}
	if step.Transition != nil {
		actions++
		if step.Transition.ID == "" || step.Transition.Demon == "" {
			return fmt.Errorf("transition: id and demon are required")
		}
		if _, err := sigil.ParseStatus(step.Transition.To); err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		switch step.Transition.ExpectError {
		case "", ErrClassInvalidTransition, ErrClassNotFound:
		default:
			return fmt.Errorf("transition: unknown expect_error %q", step.Transition.ExpectError)
		}
	}
	if step.Charge != nil {
		actions++
		if step.Charge.ID == "" || step.Charge.Demon == "" {
			return fmt.Errorf("charge: id and demon are required")
		}
	}
	if step.Advance != "" {
		actions++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance: duration must be positive")
		}
	}
	if step.Corrupt != nil {
		actions++
		if step.Corrupt.Origin == "" {
			return fmt.Errorf("corrupt: origin is required")
		}
	}
	if step.Tick {
		actions++
	}

	if actions != 1 {
		return fmt.Errorf("exactly one action per step, got %d", actions)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertFinalStatus:
		if a.Sigil == "" {
			return fmt.Errorf("sigil is required for final_status")
		}
		if _, err := sigil.ParseStatus(a.Status); err != nil {
			return err
		}
	case AssertFinalStage:
		if corruption.StageFor(stageFloor(corruption.Stage(a.Stage))) != corruption.Stage(a.Stage) {
			return fmt.Errorf("unknown stage %q", a.Stage)
		}
	case AssertTraceContains:
		if a.Text == "" {
			return fmt.Errorf("text is required for trace_contains")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// stageFloor returns the lowest level of a stage, or -1 for unknown names.
func stageFloor(s corruption.Stage) float64 {
	switch s {
	case corruption.StageClean:
		return 0
	case corruption.StageTainted:
		return corruption.TaintedThreshold
	case corruption.StageCompromised:
		return corruption.CompromisedThreshold
	case corruption.StageVessel:
		return corruption.VesselThreshold
	default:
		return -1
	}
}
