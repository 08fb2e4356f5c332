package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
	"github.com/obsidian-innovations/goetia-sub001/internal/session"
	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
	"github.com/obsidian-innovations/goetia-sub001/internal/testutil"
	"github.com/obsidian-innovations/goetia-sub001/internal/whisper"
)

// Epoch is the clock reading every scenario starts from.
var Epoch = time.UnixMilli(0).UTC()

// Harness holds the per-run state of a scenario.
type Harness struct {
	store   *grimoire.Store
	session *session.Session
	clock   *testutil.ManualClock
	result  *Result
}

// Run executes a scenario in a fresh in-memory grimoire and returns its result.
// Step failures are recorded on the result; the error return is reserved for
// scenarios that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger for the store and session.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	clock := testutil.NewManualClock(Epoch)
	random := testutil.NewScriptedSource(scenario.Random...)
	store := grimoire.New(grimoire.NewMemoryBackend(),
		grimoire.WithClock(clock.Now),
		grimoire.WithLogger(logger),
	)
	sess := session.New(store, clock,
		session.WithLogger(logger),
		session.WithWhisperGenerator(whisper.NewGenerator(whisper.Pools{}, random.Next)),
	)
	sess.Bind(scenario.Bound...)

	h := &Harness{store: store, session: sess, clock: clock, result: NewResult()}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		h.execute(ctx, i, step)
	}
	for _, a := range scenario.Assertions {
		h.check(ctx, a)
	}
	return h.result, nil
}

func (h *Harness) trace(format string, args ...any) {
	h.result.AddTrace(h.clock.Elapsed(), format, args...)
}

func (h *Harness) execute(ctx context.Context, i int, step Step) {
	switch {
	case step.Create != nil:
		c := step.Create
		sg := sigil.Sigil{
			ID:               c.ID,
			DemonID:          c.Demon,
			SealIntegrity:    c.Seal,
			OverallIntegrity: c.Integrity,
			Status:           sigil.StatusDraft,
			CreatedAt:        h.clock.Now(),
			StatusChangedAt:  h.clock.Now(),
		}
		if err := h.store.UpsertSigil(ctx, sg); err != nil {
			h.result.AddError("steps[%d]: create %s: %v", i, c.ID, err)
			return
		}
		h.trace("create %s demon=%s integrity=%.2f", c.ID, c.Demon, c.Integrity)

	case step.Transition != nil:
		h.transition(ctx, i, step.Transition)

	case step.Charge != nil:
		w, err := h.session.Charge(ctx, step.Charge.Demon, step.Charge.ID)
		if err != nil {
			h.result.AddError("steps[%d]: charge %s: %v", i, step.Charge.ID, err)
			return
		}
		h.trace("charge %s window=%s", step.Charge.ID, w.Duration)

	case step.Advance != "":
		d, _ := time.ParseDuration(step.Advance)
		h.clock.Advance(d)
		h.trace("advance %s", d)

	case step.Corrupt != nil:
		st := h.session.AddCorruption(step.Corrupt.Magnitude, step.Corrupt.Origin)
		h.trace("corrupt %s %+.2f level=%.2f stage=%s", step.Corrupt.Origin, step.Corrupt.Magnitude, st.Level, st.Stage)

	case step.Tick:
		h.tick(ctx)
	}
}

func (h *Harness) transition(ctx context.Context, i int, t *TransitionStep) {
	to := sigil.Status(t.To)
	_, err := h.session.Transition(ctx, t.Demon, t.ID, to)

	switch {
	case err == nil && t.ExpectError == "":
		h.trace("transition %s -> %s", t.ID, to)
	case err == nil:
		h.result.AddError("steps[%d]: transition %s -> %s succeeded, expected %s", i, t.ID, to, t.ExpectError)
	case errorClass(err) == t.ExpectError:
		h.trace("transition %s -> %s rejected (%s)", t.ID, to, t.ExpectError)
	default:
		h.result.AddError("steps[%d]: transition %s -> %s: %v", i, t.ID, to, err)
	}
}

func errorClass(err error) string {
	switch {
	case sigil.IsInvalidTransition(err):
		return ErrClassInvalidTransition
	case grimoire.IsNotFound(err):
		return ErrClassNotFound
	default:
		return ""
	}
}

func (h *Harness) tick(ctx context.Context) {
	report := h.session.Tick(ctx)

	for _, r := range report.Readings {
		h.trace("tick %s destabilisation=%.3f collapsed=%t", r.SigilID, r.Destabilisation, r.Collapsed)
	}
	if len(report.Collapsed) > 0 {
		c := h.session.Corruption()
		for _, id := range report.Collapsed {
			h.trace("collapse %s -> spent level=%.2f stage=%s", id, c.Level, c.Stage)
		}
	}
	if report.Whisper != nil {
		h.trace("whisper %s %q", report.Whisper.Intensity, report.Whisper.String())
	}
	if len(report.Readings) == 0 && report.Whisper == nil {
		h.trace("tick quiet")
	}
}

func (h *Harness) check(ctx context.Context, a Assertion) {
	switch a.Type {
	case AssertFinalStatus:
		sg, err := h.store.SigilByID(ctx, a.Sigil)
		if err != nil {
			h.result.AddError("final_status %s: %v", a.Sigil, err)
			return
		}
		if string(sg.Status) != a.Status {
			h.result.AddError("final_status %s: got %s, want %s", a.Sigil, sg.Status, a.Status)
		}

	case AssertFinalStage:
		if got := h.session.Corruption().Stage; string(got) != a.Stage {
			h.result.AddError("final_stage: got %s, want %s", got, a.Stage)
		}

	case AssertTraceContains:
		for _, line := range h.result.Trace {
			if strings.Contains(line, a.Text) {
				return
			}
		}
		h.result.AddError("trace_contains: no line contains %q", a.Text)
	}
}
