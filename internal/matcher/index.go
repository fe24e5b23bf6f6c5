package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// index is the per-user identifier lookup index: every identifier
// (ASIN, ISBN-10, ISBN-13) present on any edition in the user's library,
// mapped to the library entry that owns it. Built lazily and rebuilt
// only when the library's content hash changes.
type index struct {
	byIdentifier map[string]*LibraryEntry
	titleSearch  []LibraryEntry // snapshot, scanned linearly for tier 3
	contentHash  string
}

func buildIndex(entries []LibraryEntry) *index {
	idx := &index{
		byIdentifier: make(map[string]*LibraryEntry, len(entries)*2),
		titleSearch:  make([]LibraryEntry, len(entries)),
	}
	copy(idx.titleSearch, entries)

	for i := range entries {
		e := &idx.titleSearch[i]
		for _, ed := range e.Editions {
			if ed.ASIN != "" {
				idx.byIdentifier[identifierKey("asin", ed.ASIN)] = e
			}
			if ed.ISBN10 != "" {
				idx.byIdentifier[identifierKey("isbn", ed.ISBN10)] = e
			}
			if ed.ISBN13 != "" {
				idx.byIdentifier[identifierKey("isbn", ed.ISBN13)] = e
			}
		}
	}
	idx.contentHash = contentHash(entries)
	return idx
}

func identifierKey(kind, value string) string { return kind + ":" + value }

// contentHash hashes the library size plus every ASIN/ISBN-13 present,
// so SetUserLibrary can tell a genuinely new snapshot from a refetch of
// the same library and skip rebuilding the index when nothing changed.
func contentHash(entries []LibraryEntry) string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		for _, ed := range e.Editions {
			if ed.ASIN != "" {
				ids = append(ids, "a:"+ed.ASIN)
			}
			if ed.ISBN13 != "" {
				ids = append(ids, "i:"+ed.ISBN13)
			}
		}
	}
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "size=%d;", len(entries))
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Index owns the mutable reference to the current index snapshot.
// Readers take the reference under a brief lock and then read the
// snapshot itself lock-free; an update swaps the reference rather than
// mutating the snapshot in place.
type Index struct {
	mu      sync.Mutex
	current *index
}

// SetUserLibrary rebuilds the index from entries if their content hash
// differs from what's cached, explicitly invalidating the prior index.
func (x *Index) SetUserLibrary(entries []LibraryEntry) {
	newHash := contentHash(entries)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.current != nil && x.current.contentHash == newHash {
		return
	}
	x.current = buildIndex(entries)
}

// EnsureBuilt builds the index from entries if it has never been built,
// without forcing a rebuild on every call, as distinct from
// SetUserLibrary's explicit invalidation.
func (x *Index) EnsureBuilt(entries []LibraryEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.current != nil {
		return
	}
	x.current = buildIndex(entries)
}

func (x *Index) snapshot() *index {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.current
}

// lookupASIN returns the library entry owning asin, if any.
func (x *Index) lookupASIN(asin string) (*LibraryEntry, bool) {
	idx := x.snapshot()
	if idx == nil || asin == "" {
		return nil, false
	}
	e, ok := idx.byIdentifier[identifierKey("asin", asin)]
	return e, ok
}

// lookupISBN returns the library entry owning isbn10 or isbn13.
func (x *Index) lookupISBN(isbn10, isbn13 string) (*LibraryEntry, bool) {
	idx := x.snapshot()
	if idx == nil {
		return nil, false
	}
	if isbn13 != "" {
		if e, ok := idx.byIdentifier[identifierKey("isbn", isbn13)]; ok {
			return e, true
		}
	}
	if isbn10 != "" {
		if e, ok := idx.byIdentifier[identifierKey("isbn", isbn10)]; ok {
			return e, true
		}
	}
	return nil, false
}

func (x *Index) allEntries() []LibraryEntry {
	idx := x.snapshot()
	if idx == nil {
		return nil
	}
	return idx.titleSearch
}
