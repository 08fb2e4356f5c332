package grimoire

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		b, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		b.Close()
	}

	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	var version int
	if err := b.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpenSQLite_JournalModeWAL(t *testing.T) {
	b := createTestSQLite(t)

	var mode string
	if err := b.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestSQLiteBackend_EmptySlotLoadsNil(t *testing.T) {
	b := createTestSQLite(t)

	data, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if data != nil {
		t.Errorf("Load() = %q, want nil", data)
	}
}

func TestSQLiteBackend_SaveLoadClear(t *testing.T) {
	b := createTestSQLite(t)
	ctx := context.Background()

	for _, doc := range []string{`{"pages":[]}`, `{"pages":[],"research":{}}`} {
		if err := b.Save(ctx, []byte(doc)); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		got, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if string(got) != doc {
			t.Errorf("Load() = %q, want %q", got, doc)
		}
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Clear failed: %v", err)
	}
	if got != nil {
		t.Errorf("Load() after Clear = %q, want nil", got)
	}
}

func TestSQLiteBackend_SlotsAreIndependent(t *testing.T) {
	b := createTestSQLite(t)
	other := b.WithSlot("second-profile")
	ctx := context.Background()

	if err := b.Save(ctx, []byte(`"a"`)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := other.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got != nil {
		t.Errorf("other slot = %q, want nil", got)
	}
}

func TestSQLiteBackend_StoreRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grimoire.db")
	ctx := context.Background()

	b1, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	s1 := New(b1)
	if err := s1.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusAwakened)); err != nil {
		t.Fatalf("UpsertSigil() failed: %v", err)
	}
	if err := s1.SaveResearch(ctx, "bael", json.RawMessage(`{"fragments":4}`)); err != nil {
		t.Fatalf("SaveResearch() failed: %v", err)
	}
	want := s1.Snapshot(ctx)
	b1.Close()

	b2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b2.Close()

	got := New(b2).Snapshot(ctx)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("snapshot after reopen = %+v, want %+v", got, want)
	}
}

func TestSQLiteBackend_LegacyPayload(t *testing.T) {
	b := createTestSQLite(t)
	ctx := context.Background()

	legacy := `[{"demonId":"bael","sigils":[]}]`
	if _, err := b.db.Exec(`INSERT INTO slots (key, value) VALUES (?, ?)`, DefaultSlot, legacy); err != nil {
		t.Fatalf("seed legacy payload: %v", err)
	}

	d := New(b).Snapshot(ctx)
	if len(d.Pages) != 1 || d.Pages[0].DemonID != "bael" {
		t.Errorf("pages = %+v, want one page for bael", d.Pages)
	}
	if d.Research == nil || len(d.Research) != 0 {
		t.Errorf("research = %v, want empty map", d.Research)
	}
}

func TestSQLiteBackend_CloseNilDB(t *testing.T) {
	b := &SQLiteBackend{}
	if err := b.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}
