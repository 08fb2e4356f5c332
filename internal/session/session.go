// Package session drives the core for one local player.
//
// A Session owns the ephemeral state (open hold windows, the corruption
// meter, whisper timing) and touches the grimoire store only at the edges:
// when a sigil is charged, released, or collapses. Tick is the per-frame
// entry point; it reads the clock once and makes every decision against that
// instant.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/obsidian-innovations/goetia-sub001/internal/corruption"
	"github.com/obsidian-innovations/goetia-sub001/internal/grimoire"
	"github.com/obsidian-innovations/goetia-sub001/internal/holdwindow"
	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
	"github.com/obsidian-innovations/goetia-sub001/internal/whisper"
)

// CollapseCorruption is added to the meter each time a sigil collapses.
const CollapseCorruption = 0.05

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Session is not safe for concurrent use; the game loop owns it.
type Session struct {
	store   *grimoire.Store
	clock   Clock
	whisper *whisper.Generator
	logger  *slog.Logger

	windows       map[string]holdwindow.Window
	charges       map[string]charge
	corruption    corruption.State
	lastWhisperAt time.Time
	boundNames    []string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithWhisperGenerator replaces the default whisper generator.
func WithWhisperGenerator(g *whisper.Generator) Option {
	return func(s *Session) { s.whisper = g }
}

// WithCorruption starts the session from an existing meter.
func WithCorruption(c corruption.State) Option {
	return func(s *Session) { s.corruption = c }
}

// New creates a session. The whisper timer starts at the clock's current
// reading, so the first whisper arrives one interval later.
func New(store *grimoire.Store, clock Clock, opts ...Option) *Session {
	s := &Session{
		store:      store,
		clock:      clock,
		whisper:    whisper.NewGenerator(whisper.Pools{}, nil),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		windows:    make(map[string]holdwindow.Window),
		charges:    make(map[string]charge),
		corruption: corruption.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastWhisperAt = clock.Now()
	return s
}

// charge is the stored view of a sigil when its window opened. A collapse
// only commits while the grimoire still matches it.
type charge struct {
	demonID   string
	changedAt time.Time
}

// Resume opens windows for sigils already charged in the store, using the
// time they were charged. Returns how many windows were opened.
func (s *Session) Resume(ctx context.Context) int {
	opened := 0
	for _, p := range s.store.Pages(ctx) {
		for _, sg := range p.Sigils {
			if sg.Status != sigil.StatusCharged {
				continue
			}
			if _, ok := s.windows[sg.ID]; ok {
				continue
			}
			s.windows[sg.ID] = holdwindow.NewWindow(sg, sg.StatusChangedAt)
			s.charges[sg.ID] = charge{demonID: p.DemonID, changedAt: sg.StatusChangedAt}
			opened++
		}
	}
	return opened
}

// Bind sets the entity names whispers may be attributed to.
func (s *Session) Bind(names ...string) {
	s.boundNames = slices.Clone(names)
}

// Corruption returns the current meter.
func (s *Session) Corruption() corruption.State {
	return s.corruption
}

// AddCorruption applies a contribution stamped at the current time.
func (s *Session) AddCorruption(magnitude float64, origin string) corruption.State {
	s.corruption = s.corruption.Add(corruption.Source{
		Magnitude: magnitude,
		Origin:    origin,
		At:        s.clock.Now(),
	})
	if s.corruption.IsVessel() {
		s.logger.Info("corruption reached vessel", "level", s.corruption.Level, "full", s.corruption.IsFullyVessel())
	}
	return s.corruption
}

// Window returns the open window for a sigil.
func (s *Session) Window(sigilID string) (holdwindow.Window, bool) {
	w, ok := s.windows[sigilID]
	return w, ok
}

// Charge commits awakened -> charged and opens a hold window at the current time.
func (s *Session) Charge(ctx context.Context, demonID, sigilID string) (holdwindow.Window, error) {
	charged, err := s.store.UpdateSigilStatus(ctx, demonID, sigilID, sigil.StatusCharged)
	if err != nil {
		return holdwindow.Window{}, fmt.Errorf("charge %s: %w", sigilID, err)
	}

	w := holdwindow.NewWindow(charged, s.clock.Now())
	s.windows[sigilID] = w
	s.charges[sigilID] = charge{demonID: demonID, changedAt: charged.StatusChangedAt}
	s.logger.Debug("hold window opened", "sigil", sigilID, "duration", w.Duration)
	return w, nil
}

// Transition commits any other status change. Leaving charged closes the
// sigil's window.
func (s *Session) Transition(ctx context.Context, demonID, sigilID string, to sigil.Status) (sigil.Sigil, error) {
	if to == sigil.StatusCharged {
		if _, err := s.Charge(ctx, demonID, sigilID); err != nil {
			return sigil.Sigil{}, err
		}
		return s.store.SigilByID(ctx, sigilID)
	}

	next, err := s.store.UpdateSigilStatus(ctx, demonID, sigilID, to)
	if err != nil {
		return next, err
	}
	delete(s.windows, sigilID)
	delete(s.charges, sigilID)
	return next, nil
}

// Reading is one window's state at a tick.
type Reading struct {
	SigilID         string
	Destabilisation float64
	Collapsed       bool
	Remaining       time.Duration
}

// TickReport is everything that happened in one tick.
type TickReport struct {
	At       time.Time
	Readings []Reading
	// Collapsed lists sigils moved charged -> spent during this tick.
	Collapsed []string
	Whisper   *whisper.Whisper
}

// Tick evaluates every open window and the whisper timer at the current time.
// Collapsed sigils are committed as spent and feed the corruption meter.
func (s *Session) Tick(ctx context.Context) TickReport {
	now := s.clock.Now()
	report := TickReport{At: now}

	ids := make([]string, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		w := s.windows[id]
		r := Reading{
			SigilID:         id,
			Destabilisation: w.Destabilisation(now),
			Collapsed:       w.IsCollapsed(now),
			Remaining:       w.Remaining(now),
		}
		report.Readings = append(report.Readings, r)
		if r.Collapsed {
			s.collapse(ctx, id, &report)
		}
	}

	level := s.corruption.Level
	if whisper.Due(now, s.lastWhisperAt, level) {
		w := s.whisper.Generate(level, s.boundNames)
		report.Whisper = &w
		s.lastWhisperAt = now
	}
	return report
}

func (s *Session) collapse(ctx context.Context, sigilID string, report *TickReport) {
	c := s.charges[sigilID]
	_, err := s.store.UpdateSigilStatusIf(ctx, c.demonID, sigilID, sigil.StatusCharged, c.changedAt, sigil.StatusSpent)
	if err != nil {
		// The sigil moved on elsewhere, so this window no longer describes it.
		s.logger.Warn("dropping stale hold window", "sigil", sigilID, "error", err)
	} else {
		report.Collapsed = append(report.Collapsed, sigilID)
		s.AddCorruption(CollapseCorruption, corruption.OriginCollapse)
	}
	delete(s.windows, sigilID)
	delete(s.charges, sigilID)
}
