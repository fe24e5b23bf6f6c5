package store

import (
	"context"
	"time"
)

// SessionUpdate bundles the raw progress shape a delayed session needs
// cached alongside its pending percent, so a later flush can replay the
// exact write it deferred rather than reconstruct it from the percent.
type SessionUpdate struct {
	PendingProgress   float64
	UserBookID        *int64
	Format            string
	PendingSeconds    float64
	PendingPage       int
	PendingTotalPages int
}

// UpdateSessionProgress stores pending progress for a delayed-update
// session: sets session_pending_progress, marks session_is_active, and
// stamps session_last_change at now.
func (s *Store) UpdateSessionProgress(ctx context.Context, userID, identifier, title string, idType IdentifierType, upd SessionUpdate) error {
	if err := validateIdentifierType(idType); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tc *txContext) error {
		b, err := upsertIdentity(tc.DB(), userID, identifier, title, idType)
		if err != nil {
			return err
		}
		now := s.now()
		format := upd.Format
		seconds := upd.PendingSeconds
		page := upd.PendingPage
		totalPages := upd.PendingTotalPages
		updates := map[string]interface{}{
			"session_is_active":           true,
			"session_pending_progress":    upd.PendingProgress,
			"session_last_change":         now,
			"session_format":              &format,
			"session_pending_seconds":     &seconds,
			"session_pending_page":        &page,
			"session_pending_total_pages": &totalPages,
			"updated_at":                  now,
		}
		if upd.UserBookID != nil {
			updates["user_book_id"] = *upd.UserBookID
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

// MarkSessionComplete pushes the pending session progress into the
// last-pushed progress_percent/last_hardcover_sync columns and clears
// the session flags.
func (s *Store) MarkSessionComplete(ctx context.Context, userID, identifier, title string, idType IdentifierType) error {
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
			"session_is_active":           false,
			"session_pending_progress":    nil,
			"session_last_change":         nil,
			"session_format":              nil,
			"session_pending_seconds":     nil,
			"session_pending_page":        nil,
			"session_pending_total_pages": nil,
			"last_hardcover_sync":         now,
			"updated_at":                  now,
		}
		if b.SessionPendingProgress != nil {
			updates["progress_percent"] = *b.SessionPendingProgress
			updates["last_sync"] = now
		}
		return tc.DB().Model(b).Updates(updates).Error
	})
}

// HasActiveSession reports whether the row for this identity has an
// active delayed-update session.
func (s *Store) HasActiveSession(ctx context.Context, userID, identifier, title string, idType IdentifierType) bool {
	info := s.GetCachedBookInfo(ctx, userID, identifier, title, idType)
	if !info.Exists {
		return false
	}
	var b Book
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND identifier = ? AND title_normalized = ?", userID, identifier, NormalizeTitle(title)).
		First(&b).Error
	if err != nil {
		return false
	}
	return b.SessionIsActive
}

// ActiveSession is one row of GetActiveSessions / GetExpiredSessions.
type ActiveSession struct {
	Identifier        string
	TitleNormalized   string
	IdentifierType    string
	PendingProgress   float64
	SessionLastChange time.Time
	UserBookID        *int64
	EditionID         *int64
	Format            string
	PendingSeconds    float64
	PendingPage       int
	PendingTotalPages int
}

// GetActiveSessions returns every row with an active session for userID.
func (s *Store) GetActiveSessions(ctx context.Context, userID string) ([]ActiveSession, error) {
	var rows []Book
	if err := s.db.WithContext(ctx).Where("user_id = ? AND session_is_active = ?", userID, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toActiveSessions(rows), nil
}

// GetExpiredSessions returns active sessions for userID whose
// session_last_change is older than timeoutSeconds, driving
// processExpiredSessions.
func (s *Store) GetExpiredSessions(ctx context.Context, userID string, timeoutSeconds int) ([]ActiveSession, error) {
	cutoff := s.now().Add(-time.Duration(timeoutSeconds) * time.Second)
	var rows []Book
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND session_is_active = ? AND session_last_change <= ?", userID, true, cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toActiveSessions(rows), nil
}

func toActiveSessions(rows []Book) []ActiveSession {
	out := make([]ActiveSession, 0, len(rows))
	for _, b := range rows {
		as := ActiveSession{
			Identifier:      b.Identifier,
			TitleNormalized: b.TitleNormalized,
			IdentifierType:  b.IdentifierType,
			UserBookID:      b.UserBookID,
			EditionID:       b.EditionID,
		}
		if b.SessionPendingProgress != nil {
			as.PendingProgress = *b.SessionPendingProgress
		}
		if b.SessionLastChange != nil {
			as.SessionLastChange = *b.SessionLastChange
		}
		if b.SessionFormat != nil {
			as.Format = *b.SessionFormat
		}
		if b.SessionPendingSeconds != nil {
			as.PendingSeconds = *b.SessionPendingSeconds
		}
		if b.SessionPendingPage != nil {
			as.PendingPage = *b.SessionPendingPage
		}
		if b.SessionPendingTotalPages != nil {
			as.PendingTotalPages = *b.SessionPendingTotalPages
		}
		out = append(out, as)
	}
	return out
}
