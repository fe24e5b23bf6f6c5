package matcher

import (
	"strings"

	"github.com/xrash/smetrics"

	"github.com/rohit-purandare/shelfbridge/internal/logger"
)

// Weights for the tier-3 fuzzy score: title carries the
// most weight, author next, and format-fit is a small tiebreaker so two
// otherwise-equal candidates prefer the edition whose format matches the
// source book.
const (
	titleWeight      = 0.5
	authorWeight     = 0.35
	formatFitWeight  = 0.15
	fuzzyAcceptFloor = 0.75
)

// Matcher runs the three-tier matching strategy against a per-user
// identifier lookup index built lazily from the user's Hardcover
// library.
type Matcher struct {
	index *Index
	log   *logger.Logger
}

func New(log *logger.Logger) *Matcher {
	return &Matcher{index: &Index{}, log: log}
}

// SetUserLibrary publishes a new library snapshot, rebuilding the
// identifier index only if its content hash changed.
func (m *Matcher) SetUserLibrary(entries []LibraryEntry) {
	m.index.SetUserLibrary(entries)
}

// EnsureBuilt builds the identifier index from entries only if it has
// never been built, leaving an already-built index untouched.
func (m *Matcher) EnsureBuilt(entries []LibraryEntry) {
	m.index.EnsureBuilt(entries)
}

// FindMatch runs tier 1 (ASIN), tier 2 (ISBN), then tier 3 (fuzzy
// title/author) in order, returning the first hit. It never returns an
// error: a miss is reported as (nil, metadata), the metadata useful for
// logging what was searched for even on failure.
func (m *Matcher) FindMatch(book ABSBook) (*Match, ExtractedMetadata) {
	meta := ExtractedMetadata{
		Title:  book.Title,
		Author: book.Author,
		ASIN:   book.ASIN,
		ISBN10: book.ISBN10,
		ISBN13: book.ISBN13,
	}

	if match := m.matchByASIN(book); match != nil {
		return match, meta
	}
	if match := m.matchByISBN(book); match != nil {
		return match, meta
	}
	if match := m.matchByTitleAuthor(book); match != nil {
		return match, meta
	}
	return nil, meta
}

// matchByASIN is tier 1: an exact ASIN hit is the strongest possible
// signal since ASIN identifies a specific audio edition, not just a
// work, so it is tried first.
func (m *Matcher) matchByASIN(book ABSBook) *Match {
	if book.ASIN == "" {
		return nil
	}
	entry, ok := m.index.lookupASIN(book.ASIN)
	if !ok {
		return nil
	}
	ed, ok := editionByASIN(entry.Editions, book.ASIN)
	if !ok {
		return nil
	}
	return &Match{
		UserBook:  entry.UserBook,
		Edition:   ed,
		BookID:    entry.Book.ID,
		MatchType: "asin",
		Tier:      TierASIN,
	}
}

// matchByISBN is tier 2, tried only once ASIN has been exhausted.
// ISBN-13 is preferred over ISBN-10 when both are present.
func (m *Matcher) matchByISBN(book ABSBook) *Match {
	if book.ISBN10 == "" && book.ISBN13 == "" {
		return nil
	}
	entry, ok := m.index.lookupISBN(book.ISBN10, book.ISBN13)
	if !ok {
		return nil
	}
	ed, ok := editionByISBN(entry.Editions, book.ISBN10, book.ISBN13)
	if !ok {
		return nil
	}
	return &Match{
		UserBook:  entry.UserBook,
		Edition:   ed,
		BookID:    entry.Book.ID,
		MatchType: "isbn",
		Tier:      TierISBN,
	}
}

// matchByTitleAuthor is tier 3: a weighted Jaro-Winkler fuzzy score over
// every library entry, falling back to this only when no identifier
// matched. The best-scoring entry above fuzzyAcceptFloor wins; anything
// lower is reported as a miss rather than risk a wrong match.
func (m *Matcher) matchByTitleAuthor(book ABSBook) *Match {
	match, score := m.scoreEntries(m.index.allEntries(), book)
	if match == nil && m.log != nil {
		m.log.Debug("tier 3 fuzzy match below acceptance floor", map[string]interface{}{
			"title": book.Title,
			"score": score,
		})
	}
	return match
}

// MatchCatalogEntry scores entries the same way tier 3 scores the
// cached library index, for a caller resolving a global Hardcover
// catalog search (entries with no cached UserBook) rather than the
// per-user index. A hit is reported as a search-result match.
func (m *Matcher) MatchCatalogEntry(entries []LibraryEntry, book ABSBook) *Match {
	match, _ := m.scoreEntries(entries, book)
	if match != nil {
		match.IsSearchResult = true
	}
	return match
}

// MatchCatalogByIdentifier scans entries (a Hardcover catalog search
// result set) for an edition carrying asin or isbn10/isbn13, reporting
// a search-result match on the first hit.
func (m *Matcher) MatchCatalogByIdentifier(entries []LibraryEntry, asin, isbn10, isbn13 string) *Match {
	for i := range entries {
		e := &entries[i]
		if asin != "" {
			if ed, ok := editionByASIN(e.Editions, asin); ok {
				return &Match{Edition: ed, BookID: e.Book.ID, MatchType: "asin", Tier: TierASIN, IsSearchResult: true}
			}
		}
		if isbn10 != "" || isbn13 != "" {
			if ed, ok := editionByISBN(e.Editions, isbn10, isbn13); ok {
				return &Match{Edition: ed, BookID: e.Book.ID, MatchType: "isbn", Tier: TierISBN, IsSearchResult: true}
			}
		}
	}
	return nil
}

// scoreEntries is the shared tier-3 scoring loop behind matchByTitleAuthor
// and MatchCatalogEntry: the best-scoring entry above fuzzyAcceptFloor
// wins, paired with the score it won with (useful for logging a miss).
func (m *Matcher) scoreEntries(entries []LibraryEntry, book ABSBook) (*Match, float64) {
	if len(entries) == 0 {
		return nil, 0
	}

	var best *LibraryEntry
	var bestEdition Edition
	bestScore := 0.0

	for i := range entries {
		e := &entries[i]
		score := titleAuthorScore(book, e.Book)
		ed, hasEdition := bestEditionForFormat(e.Editions, book.Format)
		if !hasEdition {
			continue
		}
		total := score
		if matchesFormat(ed.Format, book.Format) {
			total += formatFitWeight
		}
		if total > bestScore {
			bestScore = total
			best = e
			bestEdition = ed
		}
	}

	if best == nil || bestScore < fuzzyAcceptFloor {
		return nil, bestScore
	}

	score := bestScore
	return &Match{
		UserBook:      best.UserBook,
		Edition:       bestEdition,
		BookID:        best.Book.ID,
		MatchType:     "title_author",
		Tier:          TierTitleAuthor,
		MatchingScore: &score,
	}, bestScore
}

// titleAuthorScore computes the weighted Jaro-Winkler similarity between
// book and summary's title and author, normalized to lowercased, trimmed
// strings so case and surrounding whitespace don't depress the score;
// punctuation is compared as is.
func titleAuthorScore(book ABSBook, summary BookSummary) float64 {
	titleSim := jaroWinkler(normalize(book.Title), normalize(summary.Title))
	authorSim := jaroWinkler(normalize(book.Author), normalize(summary.Author))
	return titleSim*titleWeight + authorSim*authorWeight
}

func jaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func editionByASIN(editions []Edition, asin string) (Edition, bool) {
	for _, ed := range editions {
		if ed.ASIN == asin {
			return ed, true
		}
	}
	return Edition{}, false
}

func editionByISBN(editions []Edition, isbn10, isbn13 string) (Edition, bool) {
	for _, ed := range editions {
		if isbn13 != "" && ed.ISBN13 == isbn13 {
			return ed, true
		}
	}
	for _, ed := range editions {
		if isbn10 != "" && ed.ISBN10 == isbn10 {
			return ed, true
		}
	}
	return Edition{}, false
}

// bestEditionForFormat picks a format-matching edition when one exists,
// otherwise falls back to the first edition so a book with only an
// ebook edition can still be reported as a (lower-scoring) candidate.
func bestEditionForFormat(editions []Edition, format string) (Edition, bool) {
	if len(editions) == 0 {
		return Edition{}, false
	}
	for _, ed := range editions {
		if matchesFormat(ed.Format, format) {
			return ed, true
		}
	}
	return editions[0], true
}

func matchesFormat(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
