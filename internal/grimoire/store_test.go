package grimoire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

func newTestStore(t *testing.T) (*Store, *flakyBackend, func(time.Duration)) {
	t.Helper()
	b := newFlakyBackend()
	now, advance := testClock(10_000)
	return New(b, WithClock(now), WithLogger(discardLogger())), b, advance
}

func TestStore_EmptyByDefault(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, s.Pages(ctx))
	assert.Empty(t, s.AllResearch(ctx))
	_, ok := s.Page(ctx, "bael")
	assert.False(t, ok)
}

func TestStore_PageOrCreate(t *testing.T) {
	s, b, _ := newTestStore(t)
	ctx := context.Background()

	p := s.PageOrCreate(ctx, "bael")
	assert.Equal(t, "bael", p.DemonID)
	assert.Empty(t, p.Sigils)
	assert.Equal(t, 1, b.saves)

	s.PageOrCreate(ctx, "bael")
	assert.Len(t, s.Pages(ctx), 1)
	assert.Equal(t, 1, b.saves, "existing page should not be rewritten")
}

func TestStore_UpsertInsertsAndReplaces(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s2", "bael", sigil.StatusDraft)))
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s3", "paimon", sigil.StatusDraft)))

	updated := testSigil("s1", "bael", sigil.StatusDraft)
	updated.OverallIntegrity = 0.3
	require.NoError(t, s.UpsertSigil(ctx, updated))

	p, ok := s.Page(ctx, "bael")
	require.True(t, ok)
	require.Len(t, p.Sigils, 2)
	assert.Equal(t, 0.3, p.Sigils[0].OverallIntegrity)
	assert.Len(t, s.Pages(ctx), 2)
}

func TestStore_UpsertRejectsOwnerChange(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	err := s.UpsertSigil(ctx, testSigil("s1", "paimon", sigil.StatusDraft))
	assert.ErrorIs(t, err, ErrOwnerChanged)

	_, ok := s.Page(ctx, "paimon")
	assert.False(t, ok)
}

func TestStore_UpsertRejectsIllegalStatusChange(t *testing.T) {
	s, b, advance := newTestStore(t)
	ctx := context.Background()

	spent := testSigil("s1", "bael", sigil.StatusSpent)
	spent.StatusChangedAt = time.UnixMilli(10_000).UTC()
	require.NoError(t, s.UpsertSigil(ctx, spent))
	saves := b.saves

	advance(time.Minute)
	revived := testSigil("s1", "bael", sigil.StatusDraft)
	revived.StatusChangedAt = time.UnixMilli(5).UTC()
	err := s.UpsertSigil(ctx, revived)
	assert.True(t, sigil.IsInvalidTransition(err))
	assert.Equal(t, saves, b.saves, "rejected upsert must not write")

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sigil.StatusSpent, stored.Status)
	assert.Equal(t, time.UnixMilli(10_000).UTC(), stored.StatusChangedAt)
}

func TestStore_UpsertAppliesLegalStatusChange(t *testing.T) {
	s, _, advance := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	advance(time.Minute)
	next := testSigil("s1", "bael", sigil.StatusComplete)
	next.StatusChangedAt = time.UnixMilli(0).UTC()
	next.OverallIntegrity = 0.4
	require.NoError(t, s.UpsertSigil(ctx, next))

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sigil.StatusComplete, stored.Status)
	assert.Equal(t, time.UnixMilli(70_000).UTC(), stored.StatusChangedAt, "stamped by the store clock")
	assert.Equal(t, 0.4, stored.OverallIntegrity)
}

func TestStore_UpsertKeepsStatusTimestamp(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusResting)))

	edited := testSigil("s1", "bael", sigil.StatusResting)
	edited.StatusChangedAt = time.UnixMilli(1).UTC()
	require.NoError(t, s.UpsertSigil(ctx, edited))

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1_000).UTC(), stored.StatusChangedAt)
}

func TestStore_ResearchWithDecomposedStoredKey(t *testing.T) {
	s, b, _ := newTestStore(t)
	ctx := context.Background()

	raw := `{"pages":[{"demonId":"Be\u0301lial","sigils":[]}],"research":{"Be\u0301lial":{"fragments":1}}}`
	require.NoError(t, b.MemoryBackend.Save(ctx, []byte(raw)))

	r, ok := s.Research(ctx, "B\u00e9lial")
	require.True(t, ok)
	assert.JSONEq(t, `{"fragments":1}`, string(r))

	r, ok = s.Research(ctx, "Be\u0301lial")
	require.True(t, ok)
	assert.JSONEq(t, `{"fragments":1}`, string(r))

	p, ok := s.Page(ctx, "B\u00e9lial")
	require.True(t, ok)
	assert.Equal(t, "B\u00e9lial", p.DemonID)
}

func TestStore_UpsertRejectsInvalidSigil(t *testing.T) {
	s, b, _ := newTestStore(t)

	bad := testSigil("s1", "bael", sigil.StatusDraft)
	bad.SealIntegrity = 2
	assert.Error(t, s.UpsertSigil(context.Background(), bad))
	assert.Zero(t, b.saves)
}

func TestStore_UpsertNormalisesDemonID(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "Be\u0301lial", sigil.StatusDraft)))
	p, ok := s.Page(ctx, "B\u00e9lial")
	require.True(t, ok)
	assert.Equal(t, "B\u00e9lial", p.Sigils[0].DemonID)
}

func TestStore_UpdateSigilStatus(t *testing.T) {
	s, _, advance := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	advance(time.Minute)
	got, err := s.UpdateSigilStatus(ctx, "bael", "s1", sigil.StatusComplete)
	require.NoError(t, err)
	assert.Equal(t, sigil.StatusComplete, got.Status)
	assert.Equal(t, time.UnixMilli(70_000).UTC(), got.StatusChangedAt)

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestStore_UpdateSigilStatusRejectsIllegalEdge(t *testing.T) {
	s, b, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	saves := b.saves

	_, err := s.UpdateSigilStatus(ctx, "bael", "s1", sigil.StatusCharged)
	assert.True(t, sigil.IsInvalidTransition(err))
	assert.Equal(t, saves, b.saves, "rejected transition must not write")

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sigil.StatusDraft, stored.Status)
}

func TestStore_UpdateSigilStatusNotFound(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	_, err := s.UpdateSigilStatus(ctx, "bael", "missing", sigil.StatusComplete)
	assert.True(t, IsNotFound(err))

	_, err = s.UpdateSigilStatus(ctx, "paimon", "s1", sigil.StatusComplete)
	assert.True(t, IsNotFound(err), "sigil is addressed through its owner's page")

	assert.Len(t, s.Pages(ctx), 1, "not-found must not create pages")
}

func TestStore_UpdateSigilStatusIf(t *testing.T) {
	s, b, advance := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusResting)))
	seen, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)

	advance(time.Minute)
	_, err = s.UpdateSigilStatus(ctx, "bael", "s1", sigil.StatusAwakened)
	require.NoError(t, err)
	saves := b.saves

	_, err = s.UpdateSigilStatusIf(ctx, "bael", "s1", seen.Status, seen.StatusChangedAt, sigil.StatusAwakened)
	assert.True(t, IsStale(err))
	assert.Equal(t, saves, b.saves, "stale update must not write")

	current, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err)
	got, err := s.UpdateSigilStatusIf(ctx, "bael", "s1", current.Status, current.StatusChangedAt, sigil.StatusCharged)
	require.NoError(t, err)
	assert.Equal(t, sigil.StatusCharged, got.Status)

	_, err = s.UpdateSigilStatusIf(ctx, "bael", "ghost", sigil.StatusCharged, current.StatusChangedAt, sigil.StatusSpent)
	assert.True(t, IsNotFound(err))
}

func TestStore_DeleteSigil(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	require.NoError(t, s.DeleteSigil(ctx, "bael", "s1"))
	_, err := s.SigilByID(ctx, "s1")
	assert.True(t, IsNotFound(err))

	p, ok := s.Page(ctx, "bael")
	require.True(t, ok, "page survives deletion of its last sigil")
	assert.Empty(t, p.Sigils)

	assert.True(t, IsNotFound(s.DeleteSigil(ctx, "bael", "s1")))
	assert.True(t, IsNotFound(s.DeleteSigil(ctx, "nobody", "s1")))
}

func TestStore_Research(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResearch(ctx, "bael", json.RawMessage(`{"fragments":2}`)))
	require.NoError(t, s.SaveResearch(ctx, "paimon", json.RawMessage(`[1,2,3]`)))
	require.NoError(t, s.SaveResearch(ctx, "bael", json.RawMessage(`{"fragments":3}`)))

	r, ok := s.Research(ctx, "bael")
	require.True(t, ok)
	assert.JSONEq(t, `{"fragments":3}`, string(r))

	_, ok = s.Research(ctx, "asmodeus")
	assert.False(t, ok)
	assert.Len(t, s.AllResearch(ctx), 2)

	assert.Error(t, s.SaveResearch(ctx, "bael", json.RawMessage(`{`)))
}

func TestStore_ClearAll(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	require.NoError(t, s.SaveResearch(ctx, "bael", json.RawMessage(`{}`)))

	s.ClearAll(ctx)
	assert.Empty(t, s.Pages(ctx))
	assert.Empty(t, s.AllResearch(ctx))
}

func TestStore_ClearAllFallsBackToEmptyWrite(t *testing.T) {
	s, b, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	b.failClear = true
	s.ClearAll(ctx)
	assert.Empty(t, s.Pages(ctx))
}

func TestStore_ReadFailureYieldsEmpty(t *testing.T) {
	s, b, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	b.set(true, false)
	assert.Empty(t, s.Pages(ctx))
	_, err := s.SigilByID(ctx, "s1")
	assert.True(t, IsNotFound(err))
}

func TestStore_CorruptPayloadYieldsEmpty(t *testing.T) {
	var logs bytes.Buffer
	b := NewMemoryBackend()
	require.NoError(t, b.Save(context.Background(), []byte(`{"pages": [`)))
	s := New(b, WithLogger(captureLogger(&logs)))

	assert.Empty(t, s.Pages(context.Background()))
	assert.Contains(t, logs.String(), "grimoire payload corrupt")
}

func TestStore_WriteFailureIsSwallowedAndSessionKeepsChanges(t *testing.T) {
	var logs bytes.Buffer
	b := newFlakyBackend()
	s := New(b, WithLogger(captureLogger(&logs)))
	ctx := context.Background()

	b.set(false, true)
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	assert.Contains(t, logs.String(), "grimoire write failed")

	stored, err := s.SigilByID(ctx, "s1")
	require.NoError(t, err, "unsaved change stays visible in this session")
	assert.Equal(t, "s1", stored.ID)

	raw, err := b.MemoryBackend.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, raw)

	b.set(false, false)
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s2", "bael", sigil.StatusDraft)))
	raw, err = b.MemoryBackend.Load(ctx)
	require.NoError(t, err)
	d, err := Decode(raw)
	require.NoError(t, err)
	assert.Len(t, d.Pages[0].Sigils, 2, "next successful write flushes the session copy")
}

func TestStore_ReloadsBeforeEveryRead(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	writer := New(b)
	reader := New(b)

	require.NoError(t, writer.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))
	_, err := reader.SigilByID(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, writer.DeleteSigil(ctx, "bael", "s1"))
	_, err = reader.SigilByID(ctx, "s1")
	assert.True(t, IsNotFound(err))
}

func TestStore_SnapshotImportRoundTrip(t *testing.T) {
	src, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, src.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusResting)))
	require.NoError(t, src.SaveResearch(ctx, "bael", json.RawMessage(`{"fragments":1}`)))

	dst, _, _ := newTestStore(t)
	require.NoError(t, dst.Import(ctx, src.Snapshot(ctx)))
	assert.Equal(t, src.Snapshot(ctx), dst.Snapshot(ctx))
}

func TestStore_ExportDecodesToSnapshot(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSigil(ctx, testSigil("s1", "bael", sigil.StatusDraft)))

	raw, err := s.Export(ctx)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(ctx), decoded)
}

func TestStore_ImportRejectsInvalid(t *testing.T) {
	s, _, _ := newTestStore(t)
	bad := testSigil("s1", "bael", "lost")
	err := s.Import(context.Background(), Data{Pages: []Page{{DemonID: "bael", Sigils: []sigil.Sigil{bad}}}})
	assert.Error(t, err)
}

func TestIsNotFound_Wrapped(t *testing.T) {
	assert.True(t, IsNotFound(sigilNotFound("x")))
	assert.False(t, IsNotFound(errors.New("x")))
}
