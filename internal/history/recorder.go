// Package history writes the per-user conversation log and retries log writes
// that failed.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foschi-ia/recordar/internal/storage"
)

// JobType is the job queue type for a deferred history append.
const JobType = "history_append"

// ReminderPrefix starts the assistant line written for a fired reminder.
const ReminderPrefix = "⏰ Recordatorio: "

// Appender persists history entries.
type Appender interface {
	AppendHistory(ctx context.Context, e storage.HistoryEntry) (storage.HistoryEntry, error)
}

// Recorder turns conversation events into history entries.
type Recorder struct {
	store  Appender
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder returns a Recorder rendering dates in loc.
func NewRecorder(store Appender, loc *time.Location) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{store: store, loc: loc, now: time.Now, logger: slog.Default()}
}

// Exchange records one chat turn: what the user wrote and what was answered.
func (r *Recorder) Exchange(ctx context.Context, owner, user, assistant string) error {
	now := r.now()
	_, err := r.store.AppendHistory(ctx, storage.HistoryEntry{
		Owner:     owner,
		Kind:      storage.HistoryChat,
		User:      user,
		Assistant: assistant,
		Fecha:     Fecha(now, r.loc),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("recording exchange for %s: %w", owner, err)
	}
	return nil
}

// ReminderFired records a delivered reminder as an assistant line.
func (r *Recorder) ReminderFired(ctx context.Context, rem storage.Reminder, firedAt time.Time) error {
	return r.Append(ctx, ReminderEntry(rem, firedAt, r.loc))
}

// Append writes a prepared entry as is.
func (r *Recorder) Append(ctx context.Context, e storage.HistoryEntry) error {
	if _, err := r.store.AppendHistory(ctx, e); err != nil {
		return fmt.Errorf("appending history entry %s: %w", e.ID, err)
	}
	return nil
}

// ReminderEntry builds the history line for a fired reminder. Its ID is
// derived from the reminder ID so that retried appends collapse into one line.
func ReminderEntry(rem storage.Reminder, firedAt time.Time, loc *time.Location) storage.HistoryEntry {
	return storage.HistoryEntry{
		ID:        "reminder:" + rem.ID,
		Owner:     rem.Owner,
		Kind:      storage.HistoryReminder,
		Assistant: ReminderPrefix + rem.Message,
		Fecha:     Fecha(firedAt, loc),
		CreatedAt: firedAt,
	}
}

// MarshalEntry encodes e as a history_append job payload.
func MarshalEntry(e storage.HistoryEntry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var (
	meses = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
	dias  = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
)

// Fecha renders t in loc as "martes, 2 de enero de 2024, 09:00".
func Fecha(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%s, %d de %s de %d, %02d:%02d",
		dias[t.Weekday()], t.Day(), meses[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}
