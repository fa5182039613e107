package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dbFileName = "recordar.db"

// Store wraps a SQLite database holding reminders, conversation history and
// the retry job queue. All access goes through a single connection, so every
// call is serialized against every other.
type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

type options struct {
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithLocation sets the named zone used to persist due instants.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithLogger sets the logger used for skipped records and recovery.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for created_at and job scheduling.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Open opens (or creates) the SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
//
// A database file that exists but cannot be read as a database is moved
// aside to "<file>.corrupt-<unix>" and a fresh, empty store is created in its
// place. The move is logged at ERROR level: reminders in the old file are no
// longer scheduled.
func Open(dataDir string, opts ...Option) (*Store, error) {
	o := options{loc: time.UTC, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if dataDir == ":memory:" {
		return open(":memory:", o)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &StoreIOError{Op: "mkdir", Path: dataDir, Err: err}
	}
	path := filepath.Join(dataDir, dbFileName)

	s, err := open(path, o)
	if err == nil {
		return s, nil
	}

	var ioErr *StoreIOError
	if !errors.As(err, &ioErr) || !ioErr.Corrupt {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", path, o.now().Unix())
	if renameErr := quarantine(path, aside); renameErr != nil {
		return nil, fmt.Errorf("%w (moving it aside failed: %v)", err, renameErr)
	}
	o.logger.Error("reminder store unreadable, starting with an empty store",
		"path", path, "moved_to", aside, "error", err)

	return open(path, o)
}

func open(dsn string, o options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreIOError{Op: "open", Path: dsn, Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreIOError{Op: "ping", Path: dsn, Corrupt: isCorrupt(err), Err: err}
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &StoreIOError{Op: "configure", Path: dsn, Corrupt: isCorrupt(err), Err: err}
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StoreIOError{Op: "configure", Path: dsn, Corrupt: isCorrupt(err), Err: err}
	}

	if err := checkIntegrity(db); err != nil {
		db.Close()
		return nil, &StoreIOError{Op: "integrity check", Path: dsn, Corrupt: true, Err: err}
	}

	s := &Store{db: db, loc: o.loc, logger: o.logger, now: o.now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &StoreIOError{Op: "migrate", Path: dsn, Corrupt: isCorrupt(err), Err: err}
	}

	return s, nil
}

func checkIntegrity(db *sql.DB) error {
	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func isCorrupt(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func quarantine(path, aside string) error {
	if err := os.Rename(path, aside); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, aside+suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Location is the zone due instants are persisted in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
