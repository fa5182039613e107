package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/foschi-ia/recordar/internal/storage"
)

func (s *Store) AddReminder(ctx context.Context, owner, message string, dueAt time.Time) (storage.Reminder, error) {
	return s.AddReminderLimited(ctx, owner, message, dueAt, 0)
}

// AddReminderLimited inserts a pending reminder unless owner already holds
// limit of them. A per-owner advisory lock serializes concurrent creates so
// the count stays accurate until commit. A limit <= 0 disables the check.
func (s *Store) AddReminderLimited(ctx context.Context, owner, message string, dueAt time.Time, limit int) (storage.Reminder, error) {
	r := storage.Reminder{
		ID:        uuid.New().String(),
		Owner:     owner,
		Message:   message,
		DueAt:     dueAt.In(s.loc).Truncate(time.Second),
		Status:    storage.StatusPending,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Reminder{}, ioErr("add reminder", err)
	}
	defer tx.Rollback()

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, owner); err != nil {
			return storage.Reminder{}, ioErr("add reminder", err)
		}
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reminders WHERE owner = $1 AND status = 'pending'`, owner,
		).Scan(&n)
		if err != nil {
			return storage.Reminder{}, ioErr("add reminder", err)
		}
		if n >= limit {
			return storage.Reminder{}, storage.ErrLimitReached
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reminders (id, owner, message, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Owner, r.Message, r.DueAt, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return storage.Reminder{}, ioErr("add reminder", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Reminder{}, ioErr("add reminder", err)
	}
	return r, nil
}

func (s *Store) ListPendingReminders(ctx context.Context, owner string) ([]storage.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, message, due_at, status, created_at
		FROM reminders WHERE owner = $1 AND status = 'pending'
		ORDER BY seq ASC`, owner,
	)
	if err != nil {
		return nil, ioErr("list reminders", err)
	}
	defer rows.Close()

	results := []storage.Reminder{}
	for rows.Next() {
		r, err := s.scanReminder(rows)
		if err != nil {
			return nil, ioErr("list reminders", err)
		}
		results = append(results, r)
	}
	return results, ioErr("list reminders", rows.Err())
}

func (s *Store) CountPendingReminders(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE owner = $1 AND status = 'pending'`, owner,
	).Scan(&n)
	return n, ioErr("count reminders", err)
}

// TakeDueReminders deletes and returns every pending reminder due at or
// before now in a single statement. Rows locked by another process are
// skipped and left for that process, so concurrent callers get disjoint sets.
func (s *Store) TakeDueReminders(ctx context.Context, now time.Time) ([]storage.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM reminders
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'pending' AND due_at <= $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, owner, message, due_at, status, created_at, seq`, now,
	)
	if err != nil {
		return nil, ioErr("take due reminders", err)
	}
	defer rows.Close()

	type taken struct {
		r   storage.Reminder
		seq int64
	}
	var out []taken
	for rows.Next() {
		var t taken
		var status string
		if err := rows.Scan(&t.r.ID, &t.r.Owner, &t.r.Message, &t.r.DueAt, &status, &t.r.CreatedAt, &t.seq); err != nil {
			return nil, ioErr("take due reminders", err)
		}
		t.r.DueAt = t.r.DueAt.In(s.loc)
		t.r.Status = storage.StatusDelivered
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("take due reminders", err)
	}

	// RETURNING order is unspecified.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.r.DueAt.Equal(b.r.DueAt) {
			return a.r.DueAt.Before(b.r.DueAt)
		}
		return a.seq < b.seq
	})
	result := make([]storage.Reminder, len(out))
	for i, t := range out {
		result[i] = t.r
	}
	return result, nil
}

func (s *Store) ClearReminders(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE owner = $1 AND status = 'pending'`, owner)
	if err != nil {
		return 0, ioErr("clear reminders", err)
	}
	n, err := res.RowsAffected()
	return int(n), ioErr("clear reminders", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReminder(row rowScanner) (storage.Reminder, error) {
	var r storage.Reminder
	var status string
	if err := row.Scan(&r.ID, &r.Owner, &r.Message, &r.DueAt, &status, &r.CreatedAt); err != nil {
		return storage.Reminder{}, err
	}
	r.DueAt = r.DueAt.In(s.loc)
	r.Status = storage.ReminderStatus(status)
	return r, nil
}
