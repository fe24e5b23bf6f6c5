// Package matcher implements the three-tier BookMatcher: ASIN exact
// match, ISBN exact match, and a title/author fuzzy fallback, all run
// against a per-user identifier lookup index built lazily from the
// user's Hardcover library.
package matcher

// Edition is Hardcover's granular unit: a specific release (audiobook,
// ebook, or print) of a Book. Progress is written to an edition.
type Edition struct {
	ID     int64
	ASIN   string
	ISBN10 string
	ISBN13 string
	Format string // "audiobook", "ebook", "print"
	Title  string
}

// UserBook links a Hardcover user to a Book via a chosen Edition and a
// reading status. It is absent (nil) on search-result-only matches that
// have not yet been added to the user's library.
type UserBook struct {
	ID        int64
	BookID    int64
	Status    string
	EditionID int64
}

// LibraryEntry is one book in a user's Hardcover library snapshot, as
// returned by the HC adapter's getUserLibrary call.
type LibraryEntry struct {
	UserBook *UserBook
	Book     BookSummary
	Editions []Edition
}

// BookSummary carries the title/author metadata needed for tier-3
// matching without pulling in the full Hardcover book graph.
type BookSummary struct {
	ID     int64
	Title  string
	Author string
}

// ABSBook is the subset of an Audiobookshelf library item the matcher
// needs: identifiers plus enough metadata to drive tier-3 fuzzy search.
type ABSBook struct {
	Title  string
	Author string
	ASIN   string
	ISBN10 string
	ISBN13 string
	Format string
}

// Tier identifies which strategy produced a Match.
type Tier int

const (
	TierNone Tier = iota
	TierASIN
	TierISBN
	TierTitleAuthor
)

func (t Tier) String() string {
	switch t {
	case TierASIN:
		return "asin"
	case TierISBN:
		return "isbn"
	case TierTitleAuthor:
		return "title_author"
	default:
		return "none"
	}
}

// Match is the outcome of a successful BookMatcher strategy. UserBook
// may be nil on search-result matches (ASIN/ISBN exact hits surfaced by
// the HC search endpoint before the book has been added to the user's
// library) — callers must treat that as load-bearing, not an error.
type Match struct {
	UserBook       *UserBook
	Edition        Edition
	BookID         int64
	MatchType      string
	Tier           Tier
	IsSearchResult bool
	MatchingScore  *float64
}

// ExtractedMetadata is returned alongside a Match (or alongside a nil
// Match) so callers can log what was searched for even on a miss.
type ExtractedMetadata struct {
	Title  string
	Author string
	ASIN   string
	ISBN10 string
	ISBN13 string
}
