// Package store implements the BookCache: the SQLite-backed record of
// per-user book state that the sync engine consults on every run.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rohit-purandare/shelfbridge/internal/clock"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
)

// DefaultPath is the default location of the cache database.
const DefaultPath = "data/.book_cache.db"

// DefaultBusyTimeout is the busy_timeout pragma set on the store's
// connection when it is opened; transactions run under it unchanged.
const DefaultBusyTimeout = 5 * time.Second

// Store is the BookCache. It owns one *gorm.DB backed by a single SQLite
// connection (SQLite allows only one writer; readers share the same
// connection here via SetMaxOpenConns(1)).
type Store struct {
	db    *gorm.DB
	log   *logger.Logger
	clock clock.Clock
	path  string
}

var (
	initMu      sync.Mutex
	initFutures = map[string]*initFuture{}
)

type initFuture struct {
	once  sync.Once
	store *Store
	err   error
}

// Open opens (creating if necessary) the cache database at path,
// performing schema migration. Concurrent Open calls for the same path
// share one in-flight initialization (: "Initialization is
// single-flight").
func Open(path string, log *logger.Logger) (*Store, error) {
	return OpenWithClock(path, log, clock.Real{})
}

// OpenWithClock is Open with an injectable clock, for tests.
func OpenWithClock(path string, log *logger.Logger, clk clock.Clock) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	initMu.Lock()
	fut, exists := initFutures[path]
	if !exists {
		fut = &initFuture{}
		initFutures[path] = fut
	}
	initMu.Unlock()

	fut.once.Do(func() {
		fut.store, fut.err = open(path, log, clk)
	})
	return fut.store, fut.err
}

func open(path string, log *logger.Logger, clk clock.Clock) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	gcfg := &gorm.Config{}
	if log != nil {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	// SQLite allows exactly one writer; serialize through one connection
	// and let the store's own transaction helper provide ordering.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("enabling WAL journaling: %w", err)
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL;").Error; err != nil {
		return nil, fmt.Errorf("setting synchronous=NORMAL: %w", err)
	}
	if err := setBusyTimeout(db, DefaultBusyTimeout); err != nil {
		return nil, err
	}

	s := &Store{db: db, log: log, clock: clk, path: path}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating cache schema: %w", err)
	}

	return s, nil
}

func setBusyTimeout(db *gorm.DB, d time.Duration) error {
	return db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", d.Milliseconds())).Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RollbackFunc is a compensating action registered on a transaction. Its
// own failure is logged, never propagated.
type RollbackFunc func()

// txContext is what WithTx callbacks receive: the transactional *gorm.DB
// plus a place to register rollback callbacks.
type txContext struct {
	tx        *gorm.DB
	rollbacks *[]RollbackFunc
}

// Register adds a compensating action to run, in reverse registration
// order, should the surrounding transaction fail.
func (c *txContext) Register(fn RollbackFunc) {
	*c.rollbacks = append(*c.rollbacks, fn)
}

// DB exposes the transactional handle to callers inside WithTx.
func (c *txContext) DB() *gorm.DB { return c.tx }

// WithTx runs fn inside one transaction under the connection's
// DefaultBusyTimeout; it neither raises nor restores the busy timeout
// around the transaction. On error, registered
// rollback callbacks run outside the transaction in reverse order; their
// failures are logged, not propagated. The original error is re-raised.
//
// This directly implements the "callback-based rollbacks for cache
// transactions" design note: every registered rollback runs even if one
// panics or errors, and the outer transaction is always rolled back on
// any failure.
func (s *Store) WithTx(ctx context.Context, fn func(tc *txContext) error) error {
	var rollbacks []RollbackFunc

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tc := &txContext{tx: tx, rollbacks: &rollbacks}
		return fn(tc)
	})

	if txErr != nil {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			s.runRollback(rollbacks[i])
		}
		return txErr
	}
	return nil
}

func (s *Store) runRollback(fn RollbackFunc) {
	defer func() {
		if r := recover(); r != nil && s.log != nil {
			s.log.Error("rollback callback panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	fn()
}

// Path returns the filesystem path this store was opened at.
func (s *Store) Path() string { return s.path }
