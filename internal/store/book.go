package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
)

// BookInfo is the read shape returned by GetCachedBookInfo: either
// Exists is false and every other field is zero-valued, or Exists is
// true and the fields mirror the matching Book row.
type BookInfo struct {
	Exists          bool
	EditionID       *int64
	UserBookID      *int64
	ProgressPercent float64
	Author          string
	LastSync        *time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	LastListenedAt  *time.Time
	UpdatedAt       time.Time
}

// GetCachedBookInfo looks up a single cached row by its identity triple.
// Internal errors are logged and answered with an empty, not-found
// result rather than propagated, a fail-open read.
func (s *Store) GetCachedBookInfo(ctx context.Context, userID, identifier, title string, idType IdentifierType) BookInfo {
	var b Book
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND identifier = ? AND title_normalized = ?", userID, identifier, NormalizeTitle(title)).
		First(&b).Error

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && s.log != nil {
			s.log.Error("cache read failed, treating as empty", map[string]interface{}{"error": err.Error()})
		}
		return BookInfo{}
	}
	_ = idType

	return BookInfo{
		Exists:          true,
		EditionID:       b.EditionID,
		UserBookID:      b.UserBookID,
		ProgressPercent: b.ProgressPercent,
		Author:          b.Author,
		LastSync:        b.LastSync,
		StartedAt:       b.StartedAt,
		FinishedAt:      b.FinishedAt,
		LastListenedAt:  b.LastListenedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// HasProgressChanged reports true if no cached record exists, or the
// cached progress differs from current by more than 0.01. On internal
// error it returns true: fail-open toward syncing.
func (s *Store) HasProgressChanged(ctx context.Context, userID, identifier, title string, current float64, idType IdentifierType) bool {
	info := s.GetCachedBookInfo(ctx, userID, identifier, title, idType)
	if !info.Exists {
		return true
	}
	return math.Abs(info.ProgressPercent-current) > 0.01
}

func validateIdentifierType(t IdentifierType) error {
	if !t.Valid() {
		return shelferrors.New(shelferrors.InvariantViolation, "identifier_type %q is not one of isbn/asin/title_author", t)
	}
	return nil
}

func validateProgress(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 100 {
		return shelferrors.New(shelferrors.InvariantViolation, "progress_percent %v is outside [0,100]", p)
	}
	return nil
}

// upsertIdentity finds-or-creates the row for this identity triple
// inside tx and returns it for further mutation.
func upsertIdentity(tx *gorm.DB, userID, identifier, title string, idType IdentifierType) (*Book, error) {
	norm := NormalizeTitle(title)
	var b Book
	err := tx.Where("user_id = ? AND identifier = ? AND title_normalized = ?", userID, identifier, norm).First(&b).Error
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	b = Book{
		UserID:          userID,
		Identifier:      identifier,
		TitleNormalized: norm,
		IdentifierType:  string(idType),
		UpdatedAt:       time.Now(),
	}
	if err := tx.Create(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// StoreEditionMapping upserts edition_id and author metadata without
// touching progress fields.
func (s *Store) StoreEditionMapping(ctx context.Context, userID, identifier, title string, idType IdentifierType, editionID int64, author string) error {
	if err := validateIdentifierType(idType); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tc *txContext) error {
		b, err := upsertIdentity(tc.DB(), userID, identifier, title, idType)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"edition_id": editionID,
			"updated_at": s.now(),
		}
		if author != "" {
			updates["author"] = author
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

// StoreProgress upserts progress_percent / last_sync / updated_at /
// last_listened_at / started_at, validating the identifier type and
// progress range and rejecting violations with a descriptive error
// instead of writing them.
func (s *Store) StoreProgress(ctx context.Context, userID, identifier, title string, idType IdentifierType, progressPercent float64, lastListenedAt, startedAt *time.Time) error {
	if err := validateIdentifierType(idType); err != nil {
		return err
	}
	if err := validateProgress(progressPercent); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tc *txContext) error {
		b, err := upsertIdentity(tc.DB(), userID, identifier, title, idType)
		if err != nil {
			return err
		}
		now := s.now()
		updates := map[string]interface{}{
			"progress_percent": progressPercent,
			"last_sync":        now,
			"updated_at":       now,
		}
		if lastListenedAt != nil {
			updates["last_listened_at"] = *lastListenedAt
		}
		if startedAt != nil {
			updates["started_at"] = *startedAt
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

// StoreBookSyncData atomically combines StoreEditionMapping and
// StoreProgress in one transaction. userBookID is nil when the caller
// has no fresher value than what's already cached.
func (s *Store) StoreBookSyncData(ctx context.Context, userID, identifier, title string, idType IdentifierType, editionID int64, userBookID *int64, author string, progressPercent float64, lastListenedAt, startedAt *time.Time) error {
	if err := validateIdentifierType(idType); err != nil {
		return err
	}
	if err := validateProgress(progressPercent); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tc *txContext) error {
		b, err := upsertIdentity(tc.DB(), userID, identifier, title, idType)
		if err != nil {
			return err
		}
		now := s.now()
		updates := map[string]interface{}{
			"edition_id":       editionID,
			"progress_percent": progressPercent,
			"last_sync":        now,
			"updated_at":       now,
		}
		if userBookID != nil {
			updates["user_book_id"] = *userBookID
		}
		if author != "" {
			updates["author"] = author
		}
		if lastListenedAt != nil {
			updates["last_listened_at"] = *lastListenedAt
		}
		if startedAt != nil {
			updates["started_at"] = *startedAt
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

// StoreBookCompletionData atomically writes progress_percent=100,
// finished_at=now, and clears any active session, all in one
// transaction. userBookID is nil when the caller has no fresher value
// than what's already cached.
func (s *Store) StoreBookCompletionData(ctx context.Context, userID, identifier, title string, idType IdentifierType, userBookID *int64) error {
	if err := validateIdentifierType(idType); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tc *txContext) error {
		b, err := upsertIdentity(tc.DB(), userID, identifier, title, idType)
		if err != nil {
			return err
		}
		now := s.now()
		updates := map[string]interface{}{
			"progress_percent":         100.0,
			"finished_at":              now,
			"last_sync":                now,
			"updated_at":               now,
			"session_is_active":        false,
			"session_pending_progress": nil,
			"session_last_change":      nil,
		}
		if userBookID != nil {
			updates["user_book_id"] = *userBookID
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

// FindCandidateRows returns every row that could plausibly represent the
// same book under any of the candidate identity keys assembled by the
// sync pipeline's early fast-path (step 3): exact identifier
// matches plus any row sharing the normalized title, to surface legacy
// title/author rows recorded under a different identifier form.
func (s *Store) FindCandidateRows(ctx context.Context, userID string, identifiers []string, title string) ([]Book, error) {
	norm := NormalizeTitle(title)
	var rows []Book
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(identifiers) > 0 {
		q = q.Where("identifier IN ? OR title_normalized = ?", identifiers, norm)
	} else {
		q = q.Where("title_normalized = ?", norm)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("finding candidate rows: %w", err)
	}
	return rows, nil
}

// RewriteLegacyIdentifier rewrites a row found under a tolerated legacy
// title/author identifier form to the canonical form, in a transaction
// of its own. The sync pipeline does not call it.
func (s *Store) RewriteLegacyIdentifier(ctx context.Context, rowID uint, canonical string) error {
	return s.WithTx(ctx, func(tc *txContext) error {
		return tc.DB().Model(&Book{ID: rowID}).Update("identifier", canonical).Error
	})
}
