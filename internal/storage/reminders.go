package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- Reminders ---

// AddReminder stores a new pending reminder and returns it with its
// assigned ID.
func (s *Store) AddReminder(ctx context.Context, owner, message string, dueAt time.Time) (Reminder, error) {
	return s.AddReminderLimited(ctx, owner, message, dueAt, 0)
}

// AddReminderLimited stores a new pending reminder unless owner already has
// limit pending ones, in which case it returns ErrLimitReached. The count and
// the insert run as one statement. A limit <= 0 disables the check.
func (s *Store) AddReminderLimited(ctx context.Context, owner, message string, dueAt time.Time, limit int) (Reminder, error) {
	r := Reminder{
		ID:        uuid.New().String(),
		Owner:     owner,
		Message:   message,
		DueAt:     dueAt.In(s.loc).Truncate(time.Second),
		Status:    StatusPending,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, owner, message, due_at, status, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE ? <= 0 OR (SELECT COUNT(*) FROM reminders WHERE owner = ? AND status = ?) < ?`,
		r.ID, r.Owner, r.Message, s.formatDue(r.DueAt), string(StatusPending), r.CreatedAt.Format(time.RFC3339),
		limit, owner, string(StatusPending), limit,
	)
	if err != nil {
		return Reminder{}, &StoreIOError{Op: "add reminder", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Reminder{}, &StoreIOError{Op: "add reminder", Err: err}
	}
	if n == 0 {
		return Reminder{}, ErrLimitReached
	}
	return r, nil
}

// ListPendingReminders returns owner's pending reminders in creation order.
// Rows that no longer decode are logged and skipped.
func (s *Store) ListPendingReminders(ctx context.Context, owner string) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, message, due_at, status, created_at
		FROM reminders WHERE owner = ? AND status = ?
		ORDER BY rowid ASC`, owner, string(StatusPending),
	)
	if err != nil {
		return nil, &StoreIOError{Op: "list reminders", Err: err}
	}
	defer rows.Close()

	results := []Reminder{}
	for rows.Next() {
		r, err := s.scanReminder(rows)
		if err != nil {
			if merr, ok := err.(*MalformedRecordError); ok {
				s.logger.Warn("skipping malformed reminder", "reminder_id", merr.ID, "owner", owner, "error", merr)
				continue
			}
			return nil, &StoreIOError{Op: "list reminders", Err: err}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreIOError{Op: "list reminders", Err: err}
	}
	return results, nil
}

// CountPendingReminders returns how many pending reminders owner has.
func (s *Store) CountPendingReminders(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner = ? AND status = ?`, owner, string(StatusPending),
	).Scan(&n)
	if err != nil {
		return 0, &StoreIOError{Op: "count reminders", Err: err}
	}
	return n, nil
}

// TakeDueReminders removes and returns, in one transaction, every pending
// reminder whose due instant is at or before now, across all owners. A
// reminder is returned by at most one call: rows are deleted inside the
// transaction and only rows this call actually deleted are returned.
//
// Rows whose due_at no longer parses are marked malformed inside the same
// transaction so they are logged once and never fired.
func (s *Store) TakeDueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StoreIOError{Op: "take due reminders", Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner, message, due_at, status, created_at
		FROM reminders WHERE status = ? AND (due_at <= ? OR length(due_at) != 19)
		ORDER BY due_at ASC, rowid ASC`,
		string(StatusPending), s.formatDue(now),
	)
	if err != nil {
		return nil, &StoreIOError{Op: "take due reminders", Err: err}
	}

	var candidates []Reminder
	var malformed []*MalformedRecordError
	for rows.Next() {
		r, err := s.scanReminder(rows)
		if err != nil {
			if merr, ok := err.(*MalformedRecordError); ok {
				malformed = append(malformed, merr)
				continue
			}
			rows.Close()
			return nil, &StoreIOError{Op: "take due reminders", Err: err}
		}
		if r.DueAt.After(now) {
			continue
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &StoreIOError{Op: "take due reminders", Err: err}
	}
	rows.Close()

	for _, merr := range malformed {
		if _, err := tx.ExecContext(ctx, `UPDATE reminders SET status = ? WHERE id = ?`, string(StatusMalformed), merr.ID); err != nil {
			return nil, &StoreIOError{Op: "take due reminders", Err: fmt.Errorf("quarantining %s: %w", merr.ID, err)}
		}
	}

	taken := make([]Reminder, 0, len(candidates))
	for _, r := range candidates {
		res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND status = ?`, r.ID, string(StatusPending))
		if err != nil {
			return nil, &StoreIOError{Op: "take due reminders", Err: fmt.Errorf("deleting %s: %w", r.ID, err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, &StoreIOError{Op: "take due reminders", Err: err}
		}
		if n != 1 {
			continue
		}
		r.Status = StatusDelivered
		taken = append(taken, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, &StoreIOError{Op: "take due reminders", Err: fmt.Errorf("committing: %w", err)}
	}

	for _, merr := range malformed {
		s.logger.Error("malformed reminder quarantined", "reminder_id", merr.ID, "error", merr)
	}
	return taken, nil
}

// ClearReminders removes every pending reminder owned by owner regardless of
// due time and returns how many were removed.
func (s *Store) ClearReminders(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE owner = ? AND status = ?`, owner, string(StatusPending))
	if err != nil {
		return 0, &StoreIOError{Op: "clear reminders", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StoreIOError{Op: "clear reminders", Err: err}
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReminder(row rowScanner) (Reminder, error) {
	var r Reminder
	var dueAt, status, createdAt string
	if err := row.Scan(&r.ID, &r.Owner, &r.Message, &dueAt, &status, &createdAt); err != nil {
		return Reminder{}, err
	}
	r.Status = ReminderStatus(status)

	due, err := time.ParseInLocation(DueAtLayout, strings.TrimSpace(dueAt), s.loc)
	if err != nil {
		return Reminder{}, &MalformedRecordError{Table: "reminders", ID: r.ID, Field: "due_at", Err: err}
	}
	r.DueAt = due

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		r.CreatedAt = t
	}
	return r, nil
}

func (s *Store) formatDue(t time.Time) string {
	return t.In(s.loc).Format(DueAtLayout)
}
