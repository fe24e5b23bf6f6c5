// Package syncengine implements SyncManager: the per-book pipeline and
// the per-user/global orchestration that drives it concurrently.
package syncengine

import (
	"context"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/matcher"
	"github.com/rohit-purandare/shelfbridge/internal/store"
)

// SourceItem is the subset of an ABS library item the pipeline needs.
type SourceItem struct {
	ID                 string
	Title              string
	Author             string
	ASIN               string
	ISBN10             string
	ISBN13             string
	Format             string // "audiobook", "ebook", "print"
	ProgressPercent    float64
	HasProgress        bool
	IsFinished         bool
	CurrentTimeSeconds float64
	DurationSeconds    float64
	CurrentPage        int
	TotalPages         int
	LastListenedAt     *time.Time
}

// Status is the terminal classification every book ends in; every
// book ends in exactly one.
type Status string

const (
	StatusSynced    Status = "synced"
	StatusCompleted Status = "completed"
	StatusAutoAdded Status = "auto_added"
	StatusDelayed   Status = "delayed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Result is the structured outcome of one book's pipeline run.
type Result struct {
	UserID     string
	Title      string
	Identifier string
	Status     Status
	Reason     string
	Actions    []string
	Err        error
}

func (r *Result) logAction(a string) { r.Actions = append(r.Actions, a) }

// Options configures one RunUser invocation.
type Options struct {
	ForceSync               bool
	DryRun                  bool
	MinProgressThreshold    float64
	AutoAddBooks            bool
	PreventProgressRegression bool
	DeepScanInterval        int
}

// HardcoverClient is the subset of the HC adapter the pipeline consumes.
type HardcoverClient interface {
	GetUserLibrary(ctx context.Context, userID string) ([]matcher.LibraryEntry, error)
	SearchBooksByASIN(ctx context.Context, asin string) ([]matcher.LibraryEntry, error)
	SearchBooksByISBN(ctx context.Context, isbn string) ([]matcher.LibraryEntry, error)
	SearchBooksForMatching(ctx context.Context, title, author string) ([]matcher.LibraryEntry, error)
	AddBookToLibrary(ctx context.Context, bookID int64, status string, editionID int64) (userBookID int64, err error)
	UpdateReadingProgress(ctx context.Context, userBookID, editionID int64, payload ProgressPayload) error
	MarkRead(ctx context.Context, userBookID int64) error
	StartNewReadingSession(ctx context.Context, userBookID, editionID int64) error
}

// ProgressPayload is page-based for ebooks/print, seconds-based for
// audiobooks.
type ProgressPayload struct {
	Format          string
	ProgressSeconds float64
	CurrentPage     int
	TotalPages      int
}

// IdentityKey is a candidate cache lookup key assembled in step 3.
type IdentityKey struct {
	Identifier string
	Type       store.IdentifierType
}
