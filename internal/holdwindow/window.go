// Package holdwindow computes how far a charged sigil has destabilised.
//
// A window opens when a sigil reaches full charge. Its length is fixed at that
// moment from the sigil's overall integrity; after it closes, destabilisation
// ramps linearly from 0 to 1 over one hour. Nothing here reads a clock or
// changes sigil status: callers pass now and decide what a collapse means.
package holdwindow

import (
	"time"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

// Window lengths by integrity band.
const (
	HighIntegrityWindow   = 4 * time.Hour
	MediumIntegrityWindow = 3 * time.Hour
	LowIntegrityWindow    = 2 * time.Hour
)

// Overtime is how long after the window closes full collapse is reached,
// independent of the window length.
const Overtime = time.Hour

// Rate is the destabilisation gained per millisecond of overtime.
const Rate = 1.0 / float64(Overtime/time.Millisecond)

// WindowDuration maps integrity to a window length.
// 0.8 is the top of the medium band (strict >) and 0.5 its bottom (inclusive).
func WindowDuration(integrity float64) time.Duration {
	switch {
	case integrity > 0.8:
		return HighIntegrityWindow
	case integrity >= 0.5:
		return MediumIntegrityWindow
	default:
		return LowIntegrityWindow
	}
}

// Window is the immutable hold-window record captured at charge time.
// A recharged sigil gets a new Window.
type Window struct {
	SigilID   string
	ChargedAt time.Time
	Duration  time.Duration
	Rate      float64
}

// NewWindow opens a window for s charged at chargedAt. The duration is taken
// from the sigil's integrity now and is not re-derived later.
func NewWindow(s sigil.Sigil, chargedAt time.Time) Window {
	return Window{
		SigilID:   s.ID,
		ChargedAt: chargedAt,
		Duration:  WindowDuration(s.OverallIntegrity),
		Rate:      Rate,
	}
}

// End is the last instant of the stable regime.
func (w Window) End() time.Time {
	return w.ChargedAt.Add(w.Duration)
}

// CollapseAt is the first instant at which IsCollapsed is true.
func (w Window) CollapseAt() time.Time {
	return w.End().Add(Overtime)
}

// Destabilisation returns 0 while now <= End, then the overtime in
// milliseconds times Rate, capped at 1.
func (w Window) Destabilisation(now time.Time) float64 {
	end := w.End()
	if !now.After(end) {
		return 0
	}
	over := now.Sub(end).Milliseconds()
	if over >= int64(Overtime/time.Millisecond) {
		return 1
	}
	return min(1, float64(over)*w.Rate)
}

// IsCollapsed reports Destabilisation(now) >= 1.
func (w Window) IsCollapsed(now time.Time) bool {
	return w.Destabilisation(now) >= 1
}

// Remaining is the stable time left before destabilisation begins, 0 once past End.
func (w Window) Remaining(now time.Time) time.Duration {
	if d := w.End().Sub(now); d > 0 {
		return d
	}
	return 0
}
