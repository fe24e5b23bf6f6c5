package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLibrary() []LibraryEntry {
	return []LibraryEntry{
		{
			UserBook: &UserBook{ID: 1, BookID: 10, Status: "reading", EditionID: 100},
			Book:     BookSummary{ID: 10, Title: "The Hobbit", Author: "J.R.R. Tolkien"},
			Editions: []Edition{
				{ID: 100, ASIN: "B0036S4PB4", Format: "audiobook", Title: "The Hobbit"},
				{ID: 101, ISBN13: "9780618260300", Format: "ebook", Title: "The Hobbit"},
			},
		},
		{
			UserBook: &UserBook{ID: 2, BookID: 20, Status: "want_to_read"},
			Book:     BookSummary{ID: 20, Title: "Project Hail Mary", Author: "Andy Weir"},
			Editions: []Edition{
				{ID: 200, ISBN10: "0593135202", Format: "audiobook", Title: "Project Hail Mary"},
			},
		},
	}
}

func TestFindMatch_Tier1ASIN(t *testing.T) {
	m := New(nil)
	m.SetUserLibrary(sampleLibrary())

	match, _ := m.FindMatch(ABSBook{Title: "The Hobbit", Author: "Tolkien", ASIN: "B0036S4PB4", Format: "audiobook"})
	require.NotNil(t, match)
	require.Equal(t, TierASIN, match.Tier)
	require.Equal(t, int64(100), match.Edition.ID)
}

func TestFindMatch_Tier2ISBNWhenNoASIN(t *testing.T) {
	m := New(nil)
	m.SetUserLibrary(sampleLibrary())

	match, _ := m.FindMatch(ABSBook{Title: "Project Hail Mary", Author: "Andy Weir", ISBN10: "0593135202"})
	require.NotNil(t, match)
	require.Equal(t, TierISBN, match.Tier)
	require.Equal(t, int64(200), match.Edition.ID)
}

func TestFindMatch_ASINPreferredOverISBNWhenBothPresent(t *testing.T) {
	// ASIN must be tried before ISBN: a book carrying both identifiers for
	// the same edition must resolve via tier 1, never fall through to
	// tier 2.
	m := New(nil)
	m.SetUserLibrary(sampleLibrary())

	match, _ := m.FindMatch(ABSBook{
		Title: "The Hobbit", Author: "Tolkien",
		ASIN: "B0036S4PB4", ISBN13: "9780618260300",
	})
	require.NotNil(t, match)
	require.Equal(t, TierASIN, match.Tier)
}

func TestFindMatch_Tier3FuzzyFallback(t *testing.T) {
	m := New(nil)
	m.SetUserLibrary(sampleLibrary())

	match, _ := m.FindMatch(ABSBook{Title: "The Hobbitt", Author: "J. R. R. Tolkien", Format: "audiobook"})
	require.NotNil(t, match)
	require.Equal(t, TierTitleAuthor, match.Tier)
	require.NotNil(t, match.MatchingScore)
	require.Greater(t, *match.MatchingScore, fuzzyAcceptFloor)
}

func TestFindMatch_NoMatchBelowFloor(t *testing.T) {
	m := New(nil)
	m.SetUserLibrary(sampleLibrary())

	match, meta := m.FindMatch(ABSBook{Title: "Completely Unrelated Title", Author: "Nobody At All"})
	require.Nil(t, match)
	require.Equal(t, "Completely Unrelated Title", meta.Title)
}

func TestIndex_RebuildsOnlyWhenContentHashChanges(t *testing.T) {
	idx := &Index{}
	lib := sampleLibrary()
	idx.SetUserLibrary(lib)
	first := idx.current

	idx.SetUserLibrary(lib) // identical content: must not rebuild
	require.Same(t, first, idx.current)

	lib2 := append(lib, LibraryEntry{
		UserBook: &UserBook{ID: 3, BookID: 30},
		Book:     BookSummary{ID: 30, Title: "Dune", Author: "Frank Herbert"},
		Editions: []Edition{{ID: 300, ASIN: "B00B7NPRY8"}},
	})
	idx.SetUserLibrary(lib2)
	require.NotSame(t, first, idx.current)
}

func TestIndex_EnsureBuiltDoesNotForceRebuild(t *testing.T) {
	idx := &Index{}
	idx.EnsureBuilt(sampleLibrary())
	first := idx.current

	idx.EnsureBuilt([]LibraryEntry{{Book: BookSummary{Title: "Different"}}})
	require.Same(t, first, idx.current, "EnsureBuilt must not replace an already-built index")
}
