// Package scheduler fires due reminders: it periodically takes them out of
// the store, pushes a notification to the owner and writes a history line.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foschi-ia/recordar/internal/history"
	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/storage"
)

// DefaultInterval is the scan period when none is configured.
const DefaultInterval = 30 * time.Second

// DueTaker removes and returns reminders that are due.
type DueTaker interface {
	TakeDueReminders(ctx context.Context, now time.Time) ([]storage.Reminder, error)
}

// Notifier receives fired reminders for delivery to their owners.
type Notifier interface {
	Push(n notify.Notification)
}

// HistorySink appends entries to the owner's conversation log.
type HistorySink interface {
	Append(ctx context.Context, e storage.HistoryEntry) error
}

// RetryQueue stores history writes to be replayed later.
type RetryQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) (string, error)
}

// State is what the scheduler is doing right now.
type State int32

const (
	Idle State = iota
	Scanning
	Delivering
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Delivering:
		return "delivering"
	default:
		return "idle"
	}
}

// Options tune a Scheduler. Zero values pick the defaults.
type Options struct {
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Scheduler delivers due reminders on a fixed interval. A fired reminder is
// pushed before its history line is written, so a history failure never costs
// the user the notification; the line is queued for retry instead.
type Scheduler struct {
	store    DueTaker
	notifier Notifier
	sink     HistorySink
	retries  RetryQueue

	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger

	tickMu   sync.Mutex
	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler. retries may be nil, in which case failed history
// writes are only logged.
func New(store DueTaker, notifier Notifier, sink HistorySink, retries RetryQueue, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		sink:     sink,
		retries:  retries,
		interval: opts.Interval,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}
}

// Run scans once immediately and then every interval until ctx is cancelled
// or Stop is called. Scan failures are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("reminder scheduler started", "interval", s.interval.String())
	defer s.logger.Info("reminder scheduler stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reminder scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends Run after the current tick. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// State reports what the scheduler is doing.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Tick takes every due reminder and delivers it. It returns how many
// reminders were delivered. Concurrent calls are serialized.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer s.state.Store(int32(Idle))

	s.state.Store(int32(Scanning))
	now := s.now()
	due, err := s.store.TakeDueReminders(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("taking due reminders: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	s.state.Store(int32(Delivering))
	for _, r := range due {
		s.deliver(ctx, r, now)
	}
	s.logger.Debug("reminders delivered", "count", len(due))
	return len(due), nil
}

// deliver never drops r: it has already left the store.
func (s *Scheduler) deliver(ctx context.Context, r storage.Reminder, firedAt time.Time) {
	s.notifier.Push(notify.Notification{
		ID:      r.ID,
		Owner:   r.Owner,
		Message: r.Message,
		DueAt:   r.DueAt.In(s.loc),
		FiredAt: firedAt.In(s.loc),
	})

	entry := history.ReminderEntry(r, firedAt, s.loc)
	err := s.sink.Append(ctx, entry)
	if err == nil {
		return
	}
	s.logger.Warn("history append failed, queueing retry", "reminder_id", r.ID, "owner", r.Owner, "error", err)

	if s.retries != nil {
		payload, mErr := history.MarshalEntry(entry)
		if mErr == nil {
			// Keyed by entry so a reminder queues at most one replay.
			_, qErr := s.retries.EnqueueJob(context.WithoutCancel(ctx), storage.Job{ID: entry.ID, Type: history.JobType, PayloadJSON: payload})
			if qErr == nil || errors.Is(qErr, storage.ErrDuplicate) {
				return
			}
			err = qErr
		} else {
			err = mErr
		}
	}

	s.logger.Error("history entry lost for fired reminder",
		"reminder_id", r.ID, "owner", r.Owner, "message", r.Message,
		"due_at", r.DueAt.In(s.loc).Format(storage.DueAtLayout), "fecha", entry.Fecha, "error", err)
}
