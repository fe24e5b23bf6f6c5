package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/clock"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/matcher"
	"github.com/rohit-purandare/shelfbridge/internal/progress"
	"github.com/rohit-purandare/shelfbridge/internal/session"
	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
	"github.com/rohit-purandare/shelfbridge/internal/store"
)

// Pipeline runs the per-book sync: match, fetch state, compute the
// progress delta, and write back to Hardcover. One
// Pipeline is shared by every book of a single user's run; RunUser
// drives the per-user worker pool that calls syncOneBook concurrently.
type Pipeline struct {
	store    *store.Store
	matcher  *matcher.Matcher
	sessions *session.Manager
	hc       HardcoverClient
	log      *logger.Logger

	regression progress.RegressionThresholds
	sessionCfg session.Config
	clock      clock.Clock
}

func NewPipeline(st *store.Store, m *matcher.Matcher, sessions *session.Manager, hc HardcoverClient, log *logger.Logger, regression progress.RegressionThresholds, sessionCfg session.Config, clk clock.Clock) *Pipeline {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Pipeline{store: st, matcher: m, sessions: sessions, hc: hc, log: log, regression: regression, sessionCfg: sessionCfg, clock: clk}
}

// syncOneBook runs the full per-book pipeline. completionThreshold is the
// percent at/above which a book counts as complete (default 95); it is
// threaded through rather than hardcoded so it honors the config's
// is_complete override.
func (p *Pipeline) syncOneBook(ctx context.Context, userID string, item SourceItem, opts Options, completionThreshold float64) Result {
	res := Result{UserID: userID, Title: item.Title, Status: StatusError}

	// Step 1: identifier extraction, with defensive defaults.
	title := item.Title
	author := item.Author
	if title == "" {
		title = "Unknown Title"
	}
	if author == "" {
		author = "Unknown Author"
	}
	res.Title = title

	// Step 2: progress validation.
	validated, err := progress.GetValidatedProgress(item.ProgressPercent, item.HasProgress, progress.ValidationOptions{AllowNull: true})
	if err != nil {
		res.Status = StatusError
		res.Reason = "invalid_progress"
		res.Err = err
		return res
	}
	if validated == nil {
		res.Status = StatusSkipped
		res.Reason = "no_progress"
		return res
	}
	currentProgress := *validated
	isCompleted := progress.IsComplete(currentProgress, progress.CompletionOptions{
		Threshold:      completionThreshold,
		IsFinishedFlag: item.IsFinished,
	})

	candidateKeys := p.assembleCandidateKeys(item)
	if len(candidateKeys) == 0 {
		res.Status = StatusSkipped
		res.Reason = "no_identifier"
		return res
	}
	primary := candidateKeys[0]
	res.Identifier = primary.Identifier

	alreadyCached := p.anyRowExists(ctx, userID, candidateKeys, title)
	if currentProgress < opts.MinProgressThreshold && !alreadyCached {
		res.Status = StatusSkipped
		res.Reason = "below_threshold"
		return res
	}

	// Step 3: early fast path.
	var cachedEditionID *int64
	if !opts.ForceSync {
		skip, editionID := p.earlyFastPath(ctx, userID, candidateKeys, title, currentProgress, completionThreshold)
		if skip {
			res.Status = StatusSkipped
			res.Reason = "progress_unchanged"
			return res
		}
		cachedEditionID = editionID
	}

	// Step 4: matching. A miss against the cached library index falls
	// back, when auto-add is enabled, to Hardcover's global catalog
	// search; a catalog hit has no UserBook yet and must be added to the
	// user's library before progress can be written to it.
	var m *matcher.Match
	autoAdded := false
	if cachedEditionID == nil {
		absBook := matcher.ABSBook{
			Title: title, Author: author,
			ASIN: item.ASIN, ISBN10: item.ISBN10, ISBN13: item.ISBN13,
			Format: item.Format,
		}
		match, _ := p.matcher.FindMatch(absBook)
		if match == nil {
			if !opts.AutoAddBooks {
				res.Status = StatusSkipped
				res.Reason = "no_match"
				return res
			}
			catalogMatch, err := p.searchHardcoverCatalog(ctx, absBook)
			if err != nil {
				res.Status = StatusError
				res.Reason = "catalog_search_failed"
				res.Err = err
				return res
			}
			if catalogMatch == nil {
				res.Status = StatusSkipped
				res.Reason = "no_match"
				return res
			}
			match = catalogMatch
		}
		m = match

		if m.UserBook == nil {
			status := libraryStatusFor(isCompleted, currentProgress)
			userBookID, err := p.hc.AddBookToLibrary(ctx, m.BookID, status, m.Edition.ID)
			if err != nil {
				res.Status = StatusError
				res.Reason = "add_to_library_failed"
				res.Err = err
				return res
			}
			m.UserBook = &matcher.UserBook{ID: userBookID, BookID: m.BookID, Status: status, EditionID: m.Edition.ID}
			autoAdded = true
			res.logAction("auto_added_to_library")
		}
	}

	// Step 5: decision (reread/regression classification).
	cached := p.store.GetCachedBookInfo(ctx, userID, primary.Identifier, title, primary.Type)

	var userBookID *int64
	if m != nil && m.UserBook != nil {
		id := m.UserBook.ID
		userBookID = &id
	} else {
		userBookID = cached.UserBookID
	}

	if cached.Exists && opts.PreventProgressRegression {
		classification := progress.ClassifyRereadOrRegression(cached.ProgressPercent, currentProgress, isCompleted, p.regression)
		switch classification {
		case progress.ClassificationBlock:
			if !opts.ForceSync {
				res.Status = StatusSkipped
				res.Reason = "regression_blocked"
				return res
			}
			res.logAction("regression_block_overridden_by_force_sync")
		case progress.ClassificationNewSession:
			if err := p.startNewSession(ctx, m); err != nil {
				res.logAction(fmt.Sprintf("new_session_start_failed: %v", err))
			} else {
				res.logAction("new_reading_session_started")
			}
		case progress.ClassificationWarn:
			res.logAction("regression_warning")
		}
	}

	// Step 6: delay decision.
	decision := session.ShouldDelayUpdate(p.sessionCfg, session.Input{
		HasPreviousProgress:  cached.Exists,
		IsCompletionDetected: isCompleted,
		TimeSinceLastSync:    p.timeSinceLastSync(cached),
		LastPushedProgress:   cached.ProgressPercent,
		CurrentProgress:      currentProgress,
		SignificantThreshold: opts.MinProgressThreshold,
	})
	if decision.Action == session.ActionDelayUpdate && !opts.ForceSync {
		if err := p.sessions.UpdateSession(ctx, userID, primary.Identifier, title, primary.Type, currentProgress, userBookID, item.Format, item.CurrentTimeSeconds, item.CurrentPage, item.TotalPages); err != nil {
			res.Status = StatusError
			res.Err = err
			return res
		}
		res.Status = StatusDelayed
		res.Reason = string(decision.Reason)
		return res
	}

	// Step 7: Hardcover write, then atomic cache persist.
	if err := p.writeToHardcover(ctx, m, item, isCompleted, opts.DryRun); err != nil {
		res.Status = StatusError
		res.Reason = "hardcover_write_failed"
		res.Err = err
		return res
	}

	idType := primary.Type
	if m != nil && m.Tier == matcher.TierTitleAuthor {
		// A book first matched by title/author stays cached under that
		// identifier type even if an identifier becomes available in a
		// later sync.
		idType = store.IdentifierTitleAuthor
	}

	editionID := int64(0)
	if m != nil {
		editionID = m.Edition.ID
	} else if cachedEditionID != nil {
		editionID = *cachedEditionID
	}

	if !opts.DryRun {
		if isCompleted {
			if err := p.store.StoreBookCompletionData(ctx, userID, primary.Identifier, title, idType, userBookID); err != nil {
				res.Status = StatusError
				res.Err = err
				return res
			}
		} else {
			if err := p.store.StoreBookSyncData(ctx, userID, primary.Identifier, title, idType, editionID, userBookID, author, currentProgress, item.LastListenedAt, nil); err != nil {
				res.Status = StatusError
				res.Err = err
				return res
			}
		}
	}

	switch {
	case autoAdded:
		res.Status = StatusAutoAdded
	case isCompleted:
		res.Status = StatusCompleted
	default:
		res.Status = StatusSynced
	}
	res.Reason = "ok"
	return res
}

func (p *Pipeline) assembleCandidateKeys(item SourceItem) []IdentityKey {
	var keys []IdentityKey
	if item.ASIN != "" {
		keys = append(keys, IdentityKey{Identifier: item.ASIN, Type: store.IdentifierASIN})
	}
	if item.ISBN13 != "" {
		keys = append(keys, IdentityKey{Identifier: item.ISBN13, Type: store.IdentifierISBN})
	}
	if item.ISBN10 != "" && item.ISBN10 != item.ISBN13 {
		keys = append(keys, IdentityKey{Identifier: item.ISBN10, Type: store.IdentifierISBN})
	}
	title, author := item.Title, item.Author
	if title == "" {
		title = "Unknown Title"
	}
	if author == "" {
		author = "Unknown Author"
	}
	keys = append(keys, IdentityKey{
		Identifier: store.GenerateTitleAuthorIdentifier(title, author),
		Type:       store.IdentifierTitleAuthor,
	})
	return keys
}

func (p *Pipeline) anyRowExists(ctx context.Context, userID string, keys []IdentityKey, title string) bool {
	for _, k := range keys {
		if p.store.GetCachedBookInfo(ctx, userID, k.Identifier, title, k.Type).Exists {
			return true
		}
	}
	return false
}

// earlyFastPath implements step 3: for every candidate key, a cached
// record whose progress is unchanged and not mid-completion short-
// circuits the whole pipeline; a record carrying an edition_id is
// remembered so matching can be skipped.
func (p *Pipeline) earlyFastPath(ctx context.Context, userID string, keys []IdentityKey, title string, currentProgress, completionThreshold float64) (skip bool, editionID *int64) {
	for _, k := range keys {
		info := p.store.GetCachedBookInfo(ctx, userID, k.Identifier, title, k.Type)
		if !info.Exists {
			continue
		}
		changed := p.store.HasProgressChanged(ctx, userID, k.Identifier, title, currentProgress, k.Type)
		nearCompletionUnfinished := info.ProgressPercent >= completionThreshold && info.FinishedAt == nil
		if !changed && !nearCompletionUnfinished {
			return true, nil
		}
		if info.EditionID != nil && editionID == nil {
			editionID = info.EditionID
		}
	}
	return false, editionID
}

func (p *Pipeline) startNewSession(ctx context.Context, m *matcher.Match) error {
	if m == nil || m.UserBook == nil {
		return shelferrors.New(shelferrors.ValidationError, "cannot start a new reading session without a matched user book")
	}
	return p.hc.StartNewReadingSession(ctx, m.UserBook.ID, m.Edition.ID)
}

func (p *Pipeline) writeToHardcover(ctx context.Context, m *matcher.Match, item SourceItem, isCompleted bool, dryRun bool) error {
	if dryRun {
		return nil
	}
	if m == nil || m.UserBook == nil {
		return shelferrors.New(shelferrors.ValidationError, "no user book to write progress to")
	}
	payload := ProgressPayload{Format: item.Format}
	if item.Format == "audiobook" {
		payload.ProgressSeconds = item.CurrentTimeSeconds
	} else {
		payload.CurrentPage = item.CurrentPage
		payload.TotalPages = item.TotalPages
	}
	if err := p.hc.UpdateReadingProgress(ctx, m.UserBook.ID, m.Edition.ID, payload); err != nil {
		return err
	}
	if item.IsFinished || isCompleted {
		return p.hc.MarkRead(ctx, m.UserBook.ID)
	}
	return nil
}

// searchHardcoverCatalog resolves a book with no hit in the user's
// cached library against Hardcover's global catalog: an ASIN or ISBN
// search first, falling back to the fuzzy title/author search used by
// tier 3. A hit is a search-result match (UserBook nil) for the caller
// to add to the user's library before writing progress.
func (p *Pipeline) searchHardcoverCatalog(ctx context.Context, book matcher.ABSBook) (*matcher.Match, error) {
	if book.ASIN != "" {
		entries, err := p.hc.SearchBooksByASIN(ctx, book.ASIN)
		if err != nil {
			return nil, err
		}
		if m := p.matcher.MatchCatalogByIdentifier(entries, book.ASIN, "", ""); m != nil {
			return m, nil
		}
	}
	if book.ISBN10 != "" || book.ISBN13 != "" {
		isbn := book.ISBN13
		if isbn == "" {
			isbn = book.ISBN10
		}
		entries, err := p.hc.SearchBooksByISBN(ctx, isbn)
		if err != nil {
			return nil, err
		}
		if m := p.matcher.MatchCatalogByIdentifier(entries, "", book.ISBN10, book.ISBN13); m != nil {
			return m, nil
		}
	}

	entries, err := p.hc.SearchBooksForMatching(ctx, book.Title, book.Author)
	if err != nil {
		return nil, err
	}
	return p.matcher.MatchCatalogEntry(entries, book), nil
}

// libraryStatusFor picks the Hardcover reading status a newly auto-added
// book should start in, from the same progress this run is about to
// write.
func libraryStatusFor(isCompleted bool, currentProgress float64) string {
	switch {
	case isCompleted:
		return "READ"
	case currentProgress > 0:
		return "CURRENTLY_READING"
	default:
		return "WANT_TO_READ"
	}
}

// FlushSession replays the write a delayed session deferred, using the
// Hardcover identifiers cached when the session was opened rather than
// rerunning the matcher.
func (p *Pipeline) FlushSession(ctx context.Context, data session.SessionData) error {
	if data.UserBookID == nil || data.EditionID == nil {
		return shelferrors.New(shelferrors.ValidationError, "expired session for %q has no cached hardcover identifiers to flush", data.Identifier)
	}
	payload := ProgressPayload{Format: data.Format}
	if data.Format == "audiobook" {
		payload.ProgressSeconds = data.PendingSeconds
	} else {
		payload.CurrentPage = data.PendingPage
		payload.TotalPages = data.PendingTotalPages
	}
	if err := p.hc.UpdateReadingProgress(ctx, *data.UserBookID, *data.EditionID, payload); err != nil {
		return err
	}
	if data.PendingProgress >= 100 {
		return p.hc.MarkRead(ctx, *data.UserBookID)
	}
	return nil
}

// timeSinceLastSync returns zero when there is no prior sync, so the
// max-delay-exceeded branch never misfires on a first push
// (bootstrap is instead caught earlier by HasPreviousProgress == false).
func (p *Pipeline) timeSinceLastSync(info store.BookInfo) time.Duration {
	if info.LastSync == nil {
		return 0
	}
	return p.clock.Now().Sub(*info.LastSync)
}
