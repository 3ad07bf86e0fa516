package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func turnAt(ts time.Time, original string) ConversationTurn {
	return ConversationTurn{
		OriginalText:   original,
		TranslatedText: "translated " + original,
		SourceLang:     "en",
		TargetLang:     "es",
		Timestamp:      ts,
	}
}

func TestNewConversationTurn_Validation(t *testing.T) {
	turn, err := NewConversationTurn("Hello", "Hola", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "Hello", turn.OriginalText)
	assert.False(t, turn.Timestamp.IsZero())
	assert.Equal(t, time.UTC, turn.Timestamp.Location())

	cases := []struct {
		name                                         string
		original, translated, sourceLang, targetLang string
	}{
		{"blank original", "  ", "Hola", "en", "es"},
		{"blank translated", "Hello", "", "en", "es"},
		{"blank source", "Hello", "Hola", " ", "es"},
		{"blank target", "Hello", "Hola", "en", ""},
		{"same languages", "Hello", "Hola", "en", "en"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConversationTurn(tc.original, tc.translated, tc.sourceLang, tc.targetLang)
			require.Error(t, err)
		})
	}
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	turn := turnAt(time.Now().UTC(), "Hello")
	require.NoError(t, store.UpsertTurn(context.Background(), turn))
	require.NoError(t, store.Close())

	// Reopening the same file re-runs init without reapplying migrations
	// and keeps existing rows.
	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	turns, err := store.ListTurns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

func TestSQLiteStore_UpsertReplacesSameTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.UpsertTurn(ctx, turnAt(ts, "first")))
	require.NoError(t, store.UpsertTurn(ctx, turnAt(ts, "second")))

	turns, err := store.ListTurns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "second", turns[0].OriginalText)
	assert.True(t, ts.Equal(turns[0].Timestamp))
}

func TestSQLiteStore_ListTurns_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := range 5 {
		turn := turnAt(base.Add(time.Duration(i)*time.Second), string(rune('a'+i)))
		require.NoError(t, store.UpsertTurn(ctx, turn))
	}

	turns, err := store.ListTurns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	assert.Equal(t, "e", turns[0].OriginalText)
	assert.Equal(t, "a", turns[4].OriginalText)

	turns, err = store.ListTurns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "e", turns[0].OriginalText)
	assert.Equal(t, "d", turns[1].OriginalText)
}

func TestSQLiteStore_DeleteTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.UpsertTurn(ctx, turnAt(ts, "keep")))
	require.NoError(t, store.UpsertTurn(ctx, turnAt(ts.Add(time.Second), "drop")))

	require.NoError(t, store.DeleteTurn(ctx, ts.Add(time.Second)))

	turns, err := store.ListTurns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "keep", turns[0].OriginalText)
}

func TestSQLiteStore_DeleteAllTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 3 {
		require.NoError(t, store.UpsertTurn(ctx, turnAt(base.Add(time.Duration(i)*time.Second), "x")))
	}
	require.NoError(t, store.DeleteAllTurns(ctx))

	turns, err := store.ListTurns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSQLiteStore_SubscribePushesOnChange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	changes, cancel := store.Subscribe()
	defer cancel()

	require.NoError(t, store.UpsertTurn(ctx, turnAt(time.Now().UTC(), "Hello")))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change tick after upsert")
	}

	// Ticks coalesce: a burst of writes yields at least one tick, and a
	// cancelled subscription stops receiving.
	cancel()
	require.NoError(t, store.DeleteAllTurns(ctx))
}

func TestSQLiteStore_PairRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePair(ctx, "en", "es"))
	require.NoError(t, store.SavePair(ctx, "en", "es")) // duplicate ignored
	require.NoError(t, store.SavePair(ctx, "es", "fr"))
	require.NoError(t, store.SavePair(ctx, "esperanto", "en"))

	pairs, err := store.LoadPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"en-es", "es-fr", "esperanto-en"}, pairs)
}

func TestSQLiteStore_RemovePairsWithLanguage_ExactMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePair(ctx, "en", "es"))
	require.NoError(t, store.SavePair(ctx, "es", "fr"))
	require.NoError(t, store.SavePair(ctx, "esperanto", "en"))

	require.NoError(t, store.RemovePairsWithLanguage(ctx, "es"))

	// "esperanto-en" survives: matching is on whole codes, not prefixes.
	pairs, err := store.LoadPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"esperanto-en"}, pairs)
}
