// Package postgres is the PostgreSQL reminder store used when several
// recordar processes share one database. It offers the same operations as
// the SQLite store; due reminders are claimed with row locks so concurrent
// schedulers in different processes never fire the same reminder.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/foschi-ia/recordar/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolationCode = "23505"

// Store is a PostgreSQL-backed reminder, history and job store.
type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn, verifies connectivity and applies pending goose
// migrations.
func Open(ctx context.Context, dsn string, loc *time.Location, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, &storage.StoreIOError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &storage.StoreIOError{Op: "ping", Err: err}
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, &storage.StoreIOError{Op: "migrate", Err: err}
	}

	return &Store{db: db, loc: loc, logger: logger, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(&slogGooseLogger{logger: logger.With("component", "migrations")})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// slogGooseLogger adapts the goose logger interface to slog. Fatalf does not
// exit; the error is returned from goose to the caller.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Location is the zone returned due instants are expressed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storage.StoreIOError{Op: op, Err: err}
}
