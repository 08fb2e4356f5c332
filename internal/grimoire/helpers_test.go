package grimoire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

var errBackend = errors.New("quota exceeded")

// flakyBackend wraps a MemoryBackend and fails on demand.
type flakyBackend struct {
	*MemoryBackend
	mu        sync.Mutex
	failLoad  bool
	failSave  bool
	failClear bool
	saves     int
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: NewMemoryBackend()}
}

func (f *flakyBackend) set(load, save bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLoad, f.failSave = load, save
}

func (f *flakyBackend) Load(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()
	if fail {
		return nil, errBackend
	}
	return f.MemoryBackend.Load(ctx)
}

func (f *flakyBackend) Save(ctx context.Context, data []byte) error {
	f.mu.Lock()
	fail := f.failSave
	f.saves++
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.MemoryBackend.Save(ctx, data)
}

func (f *flakyBackend) Clear(ctx context.Context) error {
	if f.failClear {
		return errBackend
	}
	return f.MemoryBackend.Clear(ctx)
}

// testClock returns a clock func starting at ms and a way to move it.
func testClock(ms int64) (func() time.Time, func(time.Duration)) {
	now := time.UnixMilli(ms).UTC()
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

// captureLogger returns a logger writing to buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestSQLite opens a SQLite backend in a temp dir.
func createTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grimoire.db")
	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// testSigil builds a valid sigil with fixed timestamps.
func testSigil(id, demonID string, status sigil.Status) sigil.Sigil {
	at := time.UnixMilli(1_000).UTC()
	return sigil.Sigil{
		ID:               id,
		DemonID:          demonID,
		SealIntegrity:    0.7,
		OverallIntegrity: 0.85,
		Status:           status,
		CreatedAt:        at,
		StatusChangedAt:  at,
	}
}
