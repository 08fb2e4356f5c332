package grimoire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

// Store is the persistence facade for sigil pages and research state.
// It is the only writer of durable state.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
	// unsaved holds the encoded aggregate whose last write failed. While set,
	// it is served instead of the backend so this session keeps its changes.
	unsaved []byte
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report swallowed storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source stamped on accepted status changes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pages returns every page in insertion order.
func (s *Store) Pages(ctx context.Context) []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx).Pages
}

// Page returns the page for demonID.
func (s *Store) Page(ctx context.Context, demonID string) (Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	if i := d.pageIndex(demonID); i >= 0 {
		return d.Pages[i], true
	}
	return Page{}, false
}

// PageOrCreate returns the page for demonID, creating and persisting an
// empty one if needed.
func (s *Store) PageOrCreate(ctx context.Context, demonID string) Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	if i := d.pageIndex(demonID); i >= 0 {
		return d.Pages[i]
	}
	p := Page{DemonID: NormalizeDemonID(demonID), Sigils: []sigil.Sigil{}}
	d.Pages = append(d.Pages, p)
	s.save(ctx, d)
	return p
}

// SigilByID finds a sigil on any page.
func (s *Store) SigilByID(ctx context.Context, sigilID string) (sigil.Sigil, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	pi, si, ok := d.findSigil(sigilID)
	if !ok {
		return sigil.Sigil{}, sigilNotFound(sigilID)
	}
	return d.Pages[pi].Sigils[si], nil
}

// UpsertSigil inserts sg on its owner's page or replaces the sigil with the
// same id. The owner of an existing sigil cannot change. A replacement that
// carries a different status must be a legal lifecycle edge and is stamped
// like UpdateSigilStatus; otherwise the stored timestamps are kept.
func (s *Store) UpsertSigil(ctx context.Context, sg sigil.Sigil) error {
	if err := sg.Validate(); err != nil {
		return fmt.Errorf("upsert sigil: %w", err)
	}
	sg.DemonID = NormalizeDemonID(sg.DemonID)

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	if pi, si, ok := d.findSigil(sg.ID); ok {
		if NormalizeDemonID(d.Pages[pi].DemonID) != sg.DemonID {
			return fmt.Errorf("upsert sigil %s: %w (%s -> %s)", sg.ID, ErrOwnerChanged, d.Pages[pi].DemonID, sg.DemonID)
		}
		existing := d.Pages[pi].Sigils[si]
		sg.CreatedAt = existing.CreatedAt
		sg.StatusChangedAt = existing.StatusChangedAt
		if sg.Status != existing.Status {
			to := sg.Status
			sg.Status = existing.Status
			next, err := sigil.Transition(sg, to, s.now())
			if err != nil {
				return fmt.Errorf("upsert sigil %s: %w", sg.ID, err)
			}
			sg = next
		}
		d.Pages[pi].Sigils[si] = sg
	} else {
		pi := d.pageIndex(sg.DemonID)
		if pi < 0 {
			d.Pages = append(d.Pages, Page{DemonID: sg.DemonID})
			pi = len(d.Pages) - 1
		}
		d.Pages[pi].Sigils = append(d.Pages[pi].Sigils, sg)
	}

	s.save(ctx, d)
	return nil
}

// UpdateSigilStatus moves a sigil to a new status if the lifecycle allows it.
// Returns a wrapped ErrNotFound for unknown ids and a sigil.LifecycleError for
// illegal transitions; in both cases nothing is written.
func (s *Store) UpdateSigilStatus(ctx context.Context, demonID, sigilID string, to sigil.Status) (sigil.Sigil, error) {
	return s.updateStatus(ctx, demonID, sigilID, to, nil)
}

// UpdateSigilStatusIf is UpdateSigilStatus guarded by the caller's last view
// of the sigil: the stored sigil must still be in status from, with a status
// change stamp equal to changedAt at millisecond precision. Otherwise it
// returns a wrapped ErrStale and writes nothing.
func (s *Store) UpdateSigilStatusIf(ctx context.Context, demonID, sigilID string, from sigil.Status, changedAt time.Time, to sigil.Status) (sigil.Sigil, error) {
	return s.updateStatus(ctx, demonID, sigilID, to, func(cur sigil.Sigil) error {
		if cur.Status != from || cur.StatusChangedAt.UnixMilli() != changedAt.UnixMilli() {
			return fmt.Errorf("sigil %s is %s since %s: %w", sigilID, cur.Status, cur.StatusChangedAt.Format(time.RFC3339), ErrStale)
		}
		return nil
	})
}

func (s *Store) updateStatus(ctx context.Context, demonID, sigilID string, to sigil.Status, check func(sigil.Sigil) error) (sigil.Sigil, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	pi := d.pageIndex(demonID)
	if pi < 0 {
		return sigil.Sigil{}, sigilNotFound(sigilID)
	}
	si := slices.IndexFunc(d.Pages[pi].Sigils, func(sg sigil.Sigil) bool { return sg.ID == sigilID })
	if si < 0 {
		return sigil.Sigil{}, sigilNotFound(sigilID)
	}

	cur := d.Pages[pi].Sigils[si]
	if check != nil {
		if err := check(cur); err != nil {
			return cur, err
		}
	}
	next, err := sigil.Transition(cur, to, s.now())
	if err != nil {
		return next, err
	}
	d.Pages[pi].Sigils[si] = next
	s.save(ctx, d)

	s.logger.Debug("sigil status changed", "sigil", sigilID, "demon", demonID, "status", to)
	return next, nil
}

// DeleteSigil removes a sigil from its page. The page itself is kept.
func (s *Store) DeleteSigil(ctx context.Context, demonID, sigilID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	pi := d.pageIndex(demonID)
	if pi < 0 {
		return sigilNotFound(sigilID)
	}
	before := len(d.Pages[pi].Sigils)
	d.Pages[pi].Sigils = slices.DeleteFunc(d.Pages[pi].Sigils, func(sg sigil.Sigil) bool { return sg.ID == sigilID })
	if len(d.Pages[pi].Sigils) == before {
		return sigilNotFound(sigilID)
	}

	s.save(ctx, d)
	return nil
}

// ClearAll removes every page and all research state.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsaved = nil
	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Warn("grimoire clear failed, writing empty aggregate", "error", err)
		s.save(ctx, EmptyData())
	}
}

// Research returns the stored research payload for demonID.
func (s *Store) Research(ctx context.Context, demonID string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.load(ctx).Research[NormalizeDemonID(demonID)]
	return r, ok
}

// SaveResearch stores payload for demonID, replacing any previous value.
func (s *Store) SaveResearch(ctx context.Context, demonID string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("save research for %s: payload is not valid JSON", demonID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.load(ctx)
	d.Research[NormalizeDemonID(demonID)] = slices.Clone(payload)
	s.save(ctx, d)
	return nil
}

// AllResearch returns every research payload keyed by entity.
func (s *Store) AllResearch(ctx context.Context) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx).Research
}

// Snapshot returns the whole aggregate.
func (s *Store) Snapshot(ctx context.Context) Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Export returns the aggregate encoded in the current shape.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	return Encode(s.Snapshot(ctx))
}

// Import replaces the stored aggregate with d after validating it.
func (s *Store) Import(ctx context.Context, d Data) error {
	if err := d.validate(); err != nil {
		return fmt.Errorf("import grimoire: %w", err)
	}
	for _, p := range d.Pages {
		for _, sg := range p.Sigils {
			if err := sg.Validate(); err != nil {
				return fmt.Errorf("import grimoire: %w", err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx, d.normalized())
	return nil
}

// load reads the aggregate. Failures are logged and yield an empty aggregate.
func (s *Store) load(ctx context.Context) Data {
	raw := s.unsaved
	if raw == nil {
		var err error
		raw, err = s.backend.Load(ctx)
		if err != nil {
			s.logger.Warn("grimoire read failed, starting empty", "error", err)
			return EmptyData()
		}
	}

	d, err := Decode(raw)
	if err != nil {
		s.logger.Warn("grimoire payload corrupt, starting empty", "error", err)
		return EmptyData()
	}
	return d
}

// save writes the whole aggregate. Failures are logged and swallowed.
func (s *Store) save(ctx context.Context, d Data) {
	raw, err := Encode(d)
	if err != nil {
		s.logger.Warn("grimoire encode failed", "error", err)
		return
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		s.logger.Warn("grimoire write failed, keeping session copy", "error", err)
		s.unsaved = raw
		return
	}
	s.unsaved = nil
}
