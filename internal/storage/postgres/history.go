package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/foschi-ia/recordar/internal/storage"
)

// AppendHistory records one conversation line; an existing ID is a no-op.
func (s *Store) AppendHistory(ctx context.Context, e storage.HistoryEntry) (storage.HistoryEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Kind == "" {
		e.Kind = storage.HistoryChat
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, owner, kind, user_text, assistant_text, fecha, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Owner, string(e.Kind), e.User, e.Assistant, e.Fecha, e.CreatedAt,
	)
	if err != nil {
		return storage.HistoryEntry{}, ioErr("append history", err)
	}
	return e, nil
}

func (s *Store) ListHistory(ctx context.Context, owner string, limit int) ([]storage.HistoryEntry, error) {
	query := `SELECT id, owner, kind, user_text, assistant_text, fecha, created_at FROM (
			SELECT * FROM history WHERE owner = $1
			ORDER BY created_at DESC, seq DESC LIMIT $2
		) h ORDER BY created_at ASC, seq ASC`
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL is no limit
	}
	rows, err := s.db.QueryContext(ctx, query, owner, lim)
	if err != nil {
		return nil, ioErr("list history", err)
	}
	defer rows.Close()

	results := []storage.HistoryEntry{}
	for rows.Next() {
		var e storage.HistoryEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.Owner, &kind, &e.User, &e.Assistant, &e.Fecha, &e.CreatedAt); err != nil {
			return nil, ioErr("list history", err)
		}
		e.Kind = storage.HistoryKind(kind)
		results = append(results, e)
	}
	return results, ioErr("list history", rows.Err())
}

func (s *Store) ClearHistory(ctx context.Context, owner string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE owner = $1`, owner)
	if err != nil {
		return 0, ioErr("clear history", err)
	}
	n, err := res.RowsAffected()
	return int(n), ioErr("clear history", err)
}
