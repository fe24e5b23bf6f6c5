package session

import (
	"context"

	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/store"
)

// SessionData is passed to the flush callback by ProcessExpiredSessions
// so it can perform the actual Hardcover write. UserBookID/EditionID are
// nil only for a session opened before either was ever resolved; a
// flush callback that can't cope should treat that as a failure to flush
// rather than guess.
type SessionData struct {
	UserID            string
	Identifier        string
	TitleNormalized   string
	IdentifierType    store.IdentifierType
	PendingProgress   float64
	UserBookID        *int64
	EditionID         *int64
	Format            string
	PendingSeconds    float64
	PendingPage       int
	PendingTotalPages int
}

// FlushFunc performs the deferred Hardcover write for one expired
// session. Returning an error counts against the batch's error count
// but never aborts the remaining sessions.
type FlushFunc func(ctx context.Context, data SessionData) error

// Manager drives the session lifecycle against the BookCache store:
// updateSession, completeSession, and startup/scheduled recovery via
// processExpiredSessions.
type Manager struct {
	store *store.Store
	cfg   Config
	log   *logger.Logger
}

func NewManager(st *store.Store, cfg Config, log *logger.Logger) *Manager {
	return &Manager{store: st, cfg: cfg, log: log}
}

// UpdateSession records a delayed progress update: stores the pending
// progress plus the raw values needed to replay it later, marks the
// session active, and stamps the last-change time.
func (m *Manager) UpdateSession(ctx context.Context, userID, identifier, title string, idType store.IdentifierType, progress float64, userBookID *int64, format string, pendingSeconds float64, pendingPage, pendingTotalPages int) error {
	return m.store.UpdateSessionProgress(ctx, userID, identifier, title, idType, store.SessionUpdate{
		PendingProgress:   progress,
		UserBookID:        userBookID,
		Format:            format,
		PendingSeconds:    pendingSeconds,
		PendingPage:       pendingPage,
		PendingTotalPages: pendingTotalPages,
	})
}

// CompleteSession pushes the pending session state to the last-pushed
// columns and clears the session-active flags.
func (m *Manager) CompleteSession(ctx context.Context, userID, identifier, title string, idType store.IdentifierType) error {
	return m.store.MarkSessionComplete(ctx, userID, identifier, title, idType)
}

// ProcessExpiredSessions loads sessions whose session_last_change is
// older than session_timeout, invokes flush for each, and on success
// marks the session complete. Callback failures are counted and logged
// but never abort the batch.
func (m *Manager) ProcessExpiredSessions(ctx context.Context, userID string, flush FlushFunc) (processed, failed int, err error) {
	expired, err := m.store.GetExpiredSessions(ctx, userID, m.cfg.SessionTimeout)
	if err != nil {
		return 0, 0, err
	}

	for _, s := range expired {
		data := SessionData{
			UserID:            userID,
			Identifier:        s.Identifier,
			TitleNormalized:   s.TitleNormalized,
			IdentifierType:    store.IdentifierType(s.IdentifierType),
			PendingProgress:   s.PendingProgress,
			UserBookID:        s.UserBookID,
			EditionID:         s.EditionID,
			Format:            s.Format,
			PendingSeconds:    s.PendingSeconds,
			PendingPage:       s.PendingPage,
			PendingTotalPages: s.PendingTotalPages,
		}
		if flushErr := flush(ctx, data); flushErr != nil {
			failed++
			if m.log != nil {
				m.log.Warn("expired session flush failed", map[string]interface{}{
					"user":       userID,
					"identifier": s.Identifier,
					"error":      flushErr.Error(),
				})
			}
			continue
		}
		// TitleNormalized round-trips through upsertIdentity's own
		// normalization without change, so it's safe to pass here even
		// though upsertIdentity expects a raw title elsewhere.
		if err := m.store.MarkSessionComplete(ctx, userID, s.Identifier, s.TitleNormalized, store.IdentifierType(s.IdentifierType)); err != nil {
			failed++
			if m.log != nil {
				m.log.Warn("failed to mark session complete after flush", map[string]interface{}{
					"user":       userID,
					"identifier": s.Identifier,
					"error":      err.Error(),
				})
			}
			continue
		}
		processed++
	}
	return processed, failed, nil
}
