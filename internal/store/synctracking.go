package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// IncrementSyncCount increments sync_tracking.sync_count and
// total_syncs for userID, creating the row on first use.
func (s *Store) IncrementSyncCount(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tc *txContext) error {
		t, err := getOrCreateSyncTracking(tc.DB(), userID)
		if err != nil {
			return err
		}
		return tc.DB().Model(t).Updates(map[string]interface{}{
			"sync_count":  t.SyncCount + 1,
			"total_syncs": t.TotalSyncs + 1,
		}).Error
	})
}

// GetSyncTracking returns the sync-tracking row for userID, or an
// unsaved zero-valued one (only UserID set) if it doesn't yet exist.
func (s *Store) GetSyncTracking(ctx context.Context, userID string) (SyncTracking, error) {
	var t SyncTracking
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SyncTracking{UserID: userID}, nil
	}
	return t, err
}

// RecordDeepScan resets sync_count to zero and stamps
// last_deep_scan_date at now.
func (s *Store) RecordDeepScan(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tc *txContext) error {
		t, err := getOrCreateSyncTracking(tc.DB(), userID)
		if err != nil {
			return err
		}
		now := s.now()
		return tc.DB().Model(t).Updates(map[string]interface{}{
			"sync_count":          0,
			"last_deep_scan_date": &now,
		}).Error
	})
}

// ShouldPerformDeepScan reports true when last_deep_scan_date is null or
// sync_count has reached interval.
func (s *Store) ShouldPerformDeepScan(ctx context.Context, userID string, interval int) (bool, error) {
	t, err := s.GetSyncTracking(ctx, userID)
	if err != nil {
		return false, err
	}
	if t.LastDeepScanDate == nil {
		return true, nil
	}
	return t.SyncCount >= interval, nil
}

func getOrCreateSyncTracking(tx *gorm.DB, userID string) (*SyncTracking, error) {
	var t SyncTracking
	err := tx.Where("user_id = ?", userID).First(&t).Error
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	t = SyncTracking{UserID: userID}
	if err := tx.Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
