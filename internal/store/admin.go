package store

import (
	"context"
	"encoding/json"
)

// ClearCache deletes every book row for userID. This is an explicit
// operator action: the engine itself never deletes rows.
func (s *Store) ClearCache(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tc *txContext) error {
		return tc.DB().Where("user_id = ?", userID).Delete(&Book{}).Error
	})
}

// CacheStats summarizes one user's cache for the `cache --stats` CLI
// command.
type CacheStats struct {
	TotalBooks     int64
	MatchedBooks   int64
	FinishedBooks  int64
	ActiveSessions int64
}

// GetCacheStats computes summary counters over userID's rows.
func (s *Store) GetCacheStats(ctx context.Context, userID string) (CacheStats, error) {
	var stats CacheStats
	base := s.db.WithContext(ctx).Model(&Book{}).Where("user_id = ?", userID)

	if err := base.Count(&stats.TotalBooks).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Book{}).Where("user_id = ? AND edition_id IS NOT NULL", userID).Count(&stats.MatchedBooks).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Book{}).Where("user_id = ? AND finished_at IS NOT NULL", userID).Count(&stats.FinishedBooks).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Book{}).Where("user_id = ? AND session_is_active = ?", userID, true).Count(&stats.ActiveSessions).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// ExportToJSON serializes every row for userID as an indented JSON
// array, for the `cache --export` CLI command.
func (s *Store) ExportToJSON(ctx context.Context, userID string) ([]byte, error) {
	var rows []Book
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return json.MarshalIndent(rows, "", "  ")
}

// ImportFromJSON is the inverse of ExportToJSON, and available to
// operators restoring a cache snapshot. It upserts by primary key.
func (s *Store) ImportFromJSON(ctx context.Context, data []byte) error {
	var rows []Book
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	return s.WithTx(ctx, func(tc *txContext) error {
		for i := range rows {
			if err := tc.DB().Save(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
