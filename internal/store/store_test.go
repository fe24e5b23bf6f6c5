package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rohit-purandare/shelfbridge/internal/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := OpenWithClock(path, nil, fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, fake
}

func TestStoreProgress_IdempotentWhenUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreProgress(ctx, "u1", "9781234567890", "the hobbit", IdentifierISBN, 45.5, nil, nil))

	// hasProgressChanged == false implies a subsequent storeProgress
	// with the same value is a no-op on progress_percent.
	require.False(t, s.HasProgressChanged(ctx, "u1", "9781234567890", "the hobbit", 45.5, IdentifierISBN))

	require.NoError(t, s.StoreProgress(ctx, "u1", "9781234567890", "the hobbit", IdentifierISBN, 45.5, nil, nil))
	info := s.GetCachedBookInfo(ctx, "u1", "9781234567890", "the hobbit", IdentifierISBN)
	require.True(t, info.Exists)
	require.InDelta(t, 45.5, info.ProgressPercent, 1e-9)
}

func TestGenerateTitleAuthorIdentifier_Deterministic(t *testing.T) {
	a := GenerateTitleAuthorIdentifier("The Hobbit", "J.R.R. Tolkien")
	b := GenerateTitleAuthorIdentifier("the hobbit  ", "  j.r.r. tolkien")
	require.Equal(t, a, b)
	require.Equal(t, "title_author:the_hobbit|j.r.r._tolkien", a)
}

func TestStoreBookSyncData_RejectsInvalidProgress(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.StoreBookSyncData(ctx, "u1", "B09RQ3RD3K", "t", IdentifierASIN, 1, nil, "author", 150, nil, nil)
	require.Error(t, err)
}

func TestStoreBookSyncData_RejectsBadIdentifierType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	err := s.StoreBookSyncData(ctx, "u1", "B09RQ3RD3K", "t", IdentifierType("bogus"), 1, nil, "author", 50, nil, nil)
	require.Error(t, err)
}

func TestStoreBookCompletionData_SetsCompletionInvariant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreProgress(ctx, "u1", "asin1", "book", IdentifierASIN, 94.0, nil, nil))
	require.NoError(t, s.StoreBookCompletionData(ctx, "u1", "asin1", "book", IdentifierASIN, nil))

	info := s.GetCachedBookInfo(ctx, "u1", "asin1", "book", IdentifierASIN)
	require.True(t, info.Exists)
	require.Equal(t, 100.0, info.ProgressPercent)
	require.NotNil(t, info.FinishedAt)
}

func TestHasProgressChanged_B3_NoEarlySkipNearCompletion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreProgress(ctx, "u1", "asin2", "book2", IdentifierASIN, 99.77, nil, nil))

	info := s.GetCachedBookInfo(ctx, "u1", "asin2", "book2", IdentifierASIN)
	require.True(t, info.Exists)
	require.Nil(t, info.FinishedAt)
	// Progress is unchanged, but finished_at is still null: the pipeline
	// must not early-skip a book nearing completion on progress alone.
	// HasProgressChanged reports false here; the caller layer is
	// responsible for the completion-early-skip override.
	require.False(t, s.HasProgressChanged(ctx, "u1", "asin2", "book2", 99.77, IdentifierASIN))
}

func TestSessionLifecycle(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateSessionProgress(ctx, "u1", "asin3", "book3", IdentifierASIN, SessionUpdate{PendingProgress: 35}))
	require.True(t, s.HasActiveSession(ctx, "u1", "asin3", "book3", IdentifierASIN))

	fake.Advance(20 * time.Minute)
	expired, err := s.GetExpiredSessions(ctx, "u1", 900)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.InDelta(t, 35, expired[0].PendingProgress, 1e-9)

	require.NoError(t, s.MarkSessionComplete(ctx, "u1", "asin3", "book3", IdentifierASIN))
	require.False(t, s.HasActiveSession(ctx, "u1", "asin3", "book3", IdentifierASIN))

	info := s.GetCachedBookInfo(ctx, "u1", "asin3", "book3", IdentifierASIN)
	require.InDelta(t, 35, info.ProgressPercent, 1e-9)
}

func TestShouldPerformDeepScan(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	should, err := s.ShouldPerformDeepScan(ctx, "u1", 10)
	require.NoError(t, err)
	require.True(t, should, "no prior deep scan means one is due")

	require.NoError(t, s.RecordDeepScan(ctx, "u1"))
	should, err = s.ShouldPerformDeepScan(ctx, "u1", 10)
	require.NoError(t, err)
	require.False(t, should)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.IncrementSyncCount(ctx, "u1"))
	}
	should, err = s.ShouldPerformDeepScan(ctx, "u1", 10)
	require.NoError(t, err)
	require.True(t, should)
}

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreProgress(ctx, "u1", "asin4", "book4", IdentifierASIN, 10, nil, nil))

	data, err := s.ExportToJSON(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.ImportFromJSON(ctx, data))

	info := s.GetCachedBookInfo(ctx, "u1", "asin4", "book4", IdentifierASIN)
	require.True(t, info.Exists)
	require.InDelta(t, 10, info.ProgressPercent, 1e-9)
}
