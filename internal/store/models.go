package store

import "time"

// IdentifierType enumerates the kinds of identifier a Book row may be
// keyed by. Writes with any other value are rejected.
type IdentifierType string

const (
	IdentifierISBN        IdentifierType = "isbn"
	IdentifierASIN        IdentifierType = "asin"
	IdentifierTitleAuthor IdentifierType = "title_author"
)

// Valid reports whether t is one of the three recognized identifier
// types.
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierISBN, IdentifierASIN, IdentifierTitleAuthor:
		return true
	default:
		return false
	}
}

// Book is the per-user, per-book cache row. The composite unique index
// on (UserID, Identifier, TitleNormalized) enforces one row per book
// per user.
type Book struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          string `gorm:"index:idx_book_identity,unique;not null"`
	Identifier      string `gorm:"index:idx_book_identity,unique;not null"`
	TitleNormalized string `gorm:"index:idx_book_identity,unique;not null"`
	IdentifierType  string `gorm:"not null"`

	EditionID  *int64
	UserBookID *int64
	Author     string

	ProgressPercent float64

	LastSync       *time.Time
	UpdatedAt      time.Time
	LastListenedAt *time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time

	// Session (delayed updates) fields. The raw pending values let a
	// recovered session replay the exact write it deferred instead of
	// reconstructing it from the percent alone.
	SessionIsActive          bool
	SessionPendingProgress   *float64
	SessionLastChange        *time.Time
	SessionFormat            *string
	SessionPendingSeconds    *float64
	SessionPendingPage       *int
	SessionPendingTotalPages *int
	LastHardcoverSync        *time.Time
}

// TableName pins the GORM table name independent of struct renames.
func (Book) TableName() string { return "books" }

// SyncTracking is the one-row-per-user deep-scan cadence counter.
type SyncTracking struct {
	UserID           string `gorm:"primaryKey"`
	SyncCount        int
	TotalSyncs       int
	LastDeepScanDate *time.Time
}

func (SyncTracking) TableName() string { return "sync_tracking" }

// LibraryStats is the one-row-per-user-per-deep-scan snapshot read by
// fast syncs for reporting without refetching.
type LibraryStats struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	CapturedAt  time.Time
	TotalBooks  int
	MatchedBooks int
	FinishedBooks int
}

func (LibraryStats) TableName() string { return "library_stats" }
