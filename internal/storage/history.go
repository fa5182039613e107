package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- History ---

// AppendHistory records one conversation line. An empty ID is assigned a new
// UUID. Appending an entry whose ID already exists is a no-op, so a retried
// append never produces a duplicate line.
func (s *Store) AppendHistory(ctx context.Context, e HistoryEntry) (HistoryEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Kind == "" {
		e.Kind = HistoryChat
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO history (id, owner, kind, user_text, assistant_text, fecha, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, string(e.Kind), e.User, e.Assistant, e.Fecha, e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return HistoryEntry{}, &StoreIOError{Op: "append history", Err: err}
	}
	return e, nil
}

// ListHistory returns owner's most recent entries in chronological order.
// A limit of zero or less returns everything.
func (s *Store) ListHistory(ctx context.Context, owner string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, kind, user_text, assistant_text, fecha, created_at FROM (
			SELECT rowid AS rid, * FROM history WHERE owner = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rid ASC`, owner, limit,
	)
	if err != nil {
		return nil, &StoreIOError{Op: "list history", Err: err}
	}
	defer rows.Close()

	results := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &e.Owner, &kind, &e.User, &e.Assistant, &e.Fecha, &createdAt); err != nil {
			return nil, &StoreIOError{Op: "list history", Err: err}
		}
		e.Kind = HistoryKind(kind)
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			s.logger.Warn("skipping malformed history entry", "entry_id", e.ID, "owner", owner,
				"error", &MalformedRecordError{Table: "history", ID: e.ID, Field: "created_at", Err: err})
			continue
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreIOError{Op: "list history", Err: err}
	}
	return results, nil
}

// ClearHistory deletes owner's whole conversation log.
func (s *Store) ClearHistory(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE owner = ?`, owner)
	if err != nil {
		return 0, &StoreIOError{Op: "clear history", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StoreIOError{Op: "clear history", Err: err}
	}
	return int(n), nil
}
