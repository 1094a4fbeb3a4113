package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// SQLiteStore is the concrete Store backed by a single SQLite database
// file. Grounded on the teacher's internal/store/sqlite.go: WAL journaling,
// foreign keys on, and a single-writer connection per spec §4.A/§5.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the database at path and
// configures it per spec §4.A/§5: WAL journal mode, synchronous=NORMAL,
// foreign keys on, a busy timeout with retry, and exactly one writer
// connection so that SQLite itself is the single serialization point for
// relational mutation.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.applyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// nowMicros renders the current time as integer microseconds UTC, the
// timestamp representation mandated by spec §4.A.
func nowMicros() int64 { return timeToMicros(time.Now()) }

func timeToMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func microsToTime(us int64) time.Time { return time.UnixMicro(us).UTC() }

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func toNullTime(us *int64) sql.NullInt64 { return toNullInt64(us) }

func fromNullTime(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := microsToTime(ns.Int64)
	return &t
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE constraint
// violation, following the teacher's isTokenLookupCollision pattern of
// checking the driver's numbered result code rather than string-matching.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
}

// withImmediateTx runs fn inside a transaction started with BEGIN
// IMMEDIATE, acquiring the write lock up front per spec §5 so that
// multi-statement mutations cannot fail mid-transaction on a lock upgrade.
// database/sql has no portable way to pick the BEGIN mode through Tx, so
// this drives the single writer connection directly.
func (s *SQLiteStore) withImmediateTx(ctx context.Context, fn func(c *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}

	if err := fn(conn); err != nil {
		if _, rbErr := conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
