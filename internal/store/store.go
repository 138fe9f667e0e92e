// Package store persists lessons, progress and user profiles in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavelanni/learnpath/internal/model"
)

// DefaultTxAttempts is the number of tries for a contended transaction.
const DefaultTxAttempts = 5

// Options tune a Store. The zero value is usable.
type Options struct {
	// TxMaxAttempts bounds retries of a transaction that hits SQLITE_BUSY.
	TxMaxAttempts int
	// TxInitialDelay is the first backoff between attempts.
	TxInitialDelay time.Duration
	// BusyTimeout is how long SQLite waits on a lock before reporting busy.
	BusyTimeout time.Duration
}

// DefaultBusyTimeout is used when Options.BusyTimeout is not set.
const DefaultBusyTimeout = 5 * time.Second

type Store struct {
	db      *sql.DB
	txRetry retry.Retry[struct{}]
	now     func() time.Time
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string, opts Options) (*Store, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		dbPath, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	attempts := opts.TxMaxAttempts
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}
	delay := opts.TxInitialDelay
	if delay <= 0 {
		delay = 20 * time.Millisecond
	}

	s := &Store{
		db: db,
		txRetry: retry.New[struct{}](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isBusy,
		}),
		now: time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (topic_id, ord),
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);

	CREATE TABLE IF NOT EXISTS progress (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, lesson_id)
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		answers TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user_lesson ON quiz_attempts (user_id, lesson_id, created_at);

	CREATE TRIGGER IF NOT EXISTS quiz_attempts_no_update BEFORE UPDATE ON quiz_attempts
	BEGIN
		SELECT RAISE(ABORT, 'quiz attempts are append-only');
	END;
	CREATE TRIGGER IF NOT EXISTS quiz_attempts_no_delete BEFORE DELETE ON quiz_attempts
	BEGIN
		SELECT RAISE(ABORT, 'quiz attempts are append-only');
	END;

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		total_xp INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		last_activity_date TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS completed_lessons (
		user_id TEXT NOT NULL,
		lesson_id TEXT NOT NULL,
		completed_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, lesson_id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// inTx runs fn in a transaction, retrying the whole transaction while SQLite
// reports the database as busy. Exhausted retries return ErrTransientStore.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	_, err := s.txRetry.Do(ctx, func(ctx context.Context) (struct{}, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, err
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tx.Commit()
	})
	if err != nil && isBusy(err) {
		slog.Warn("transaction retries exhausted", "error", err)
		return fmt.Errorf("%w: %w", model.ErrTransientStore, err)
	}
	return err
}

// isBusy reports whether err is a SQLite lock contention error.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
