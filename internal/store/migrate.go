package store

import (
	"fmt"

	"gorm.io/gorm"
)

// migrate performs the idempotent schema evolution: GORM's AutoMigrate
// adds any missing columns/tables, after which
// a hand-written step rebuilds the books table to drop the legacy
// "last_synced" column (SQLite has no native DROP COLUMN in the
// versions this project targets) and backfills identifier_type on rows
// that predate it. Every step here must be safe to run again against an
// already-current schema.
func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&Book{}, &SyncTracking{}, &LibraryStats{}); err != nil {
		return fmt.Errorf("auto-migrating: %w", err)
	}

	if err := s.backfillIdentifierType(); err != nil {
		return fmt.Errorf("backfilling identifier_type: %w", err)
	}

	if err := s.dropLegacyLastSyncedColumn(); err != nil {
		return fmt.Errorf("dropping legacy last_synced column: %w", err)
	}

	return nil
}

// backfillIdentifierType sets identifier_type='isbn' on any legacy row
// that predates the column.
func (s *Store) backfillIdentifierType() error {
	return s.db.Exec(
		`UPDATE books SET identifier_type = ? WHERE identifier_type IS NULL OR identifier_type = ''`,
		string(IdentifierISBN),
	).Error
}

// dropLegacyLastSyncedColumn removes the redundant "last_synced" column
// some pre-migration databases carry alongside the current "last_sync"
// column, by rebuilding the table inside one transaction: rename the
// original to books_legacy, let AutoMigrate create a fresh books table
// (with its identity index) from the current schema, copy the listed
// columns across, then drop books_legacy. A no-op when the column is
// already gone.
func (s *Store) dropLegacyLastSyncedColumn() error {
	hasLegacy, err := s.hasColumn("books", "last_synced")
	if err != nil {
		return err
	}
	if !hasLegacy {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Rename-recreate-copy: move the original aside, recreate the
		// table and its identity index from the current
		// (legacy-column-free) schema, copy rows across by column name,
		// then drop the legacy table.
		if err := tx.Migrator().RenameTable("books", "books_legacy"); err != nil {
			return fmt.Errorf("renaming legacy table: %w", err)
		}
		if err := tx.AutoMigrate(&Book{}); err != nil {
			return fmt.Errorf("recreating current-schema table: %w", err)
		}

		cols := []string{
			"id", "user_id", "identifier", "title_normalized", "identifier_type",
			"edition_id", "author", "progress_percent", "last_sync", "updated_at",
			"last_listened_at", "started_at", "finished_at", "session_is_active",
			"session_pending_progress", "session_last_change", "last_hardcover_sync",
		}
		columnList := ""
		for i, c := range cols {
			if i > 0 {
				columnList += ", "
			}
			columnList += c
		}

		copySQL := fmt.Sprintf(
			"INSERT INTO books (%s) SELECT %s FROM books_legacy",
			columnList, columnList,
		)
		if err := tx.Exec(copySQL).Error; err != nil {
			return fmt.Errorf("copying rows from legacy table: %w", err)
		}

		if err := tx.Migrator().DropTable("books_legacy"); err != nil {
			return fmt.Errorf("dropping legacy table: %w", err)
		}
		return nil
	})
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	type pragmaRow struct {
		Name string `gorm:"column:name"`
	}
	var rows []pragmaRow
	if err := s.db.Raw(fmt.Sprintf("PRAGMA table_info(%s)", table)).Scan(&rows).Error; err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Name == column {
			return true, nil
		}
	}
	return false, nil
}
