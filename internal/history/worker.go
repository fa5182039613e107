package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foschi-ia/recordar/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	AbandonJob(ctx context.Context, id string, errMsg string) error
}

// Worker replays history_append jobs left behind when a direct append failed.
type Worker struct {
	jobs   JobStore
	sink   Appender
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 1s.
func NewWorker(jobs JobStore, sink Appender, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		jobs:   jobs,
		sink:   sink,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// WithLogger sets the worker's logger.
func (w *Worker) WithLogger(l *slog.Logger) *Worker {
	if l != nil {
		w.logger = l
	}
	return w
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("history worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single history_append job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.process(ctx, job); err != nil {
		if errors.Is(err, errBadPayload) {
			w.logger.Error("history entry abandoned, payload unreadable", "job_id", job.ID, "payload", job.PayloadJSON, "error", err)
			if abErr := w.jobs.AbandonJob(ctx, job.ID, err.Error()); abErr != nil {
				w.logger.Error("failed to abandon job", "job_id", job.ID, "error", abErr)
			}
			return true, nil
		}
		w.logger.Warn("history append retry failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		if job.Attempts+1 >= job.MaxAttempts {
			w.logger.Error("history entry abandoned after retries", "job_id", job.ID, "payload", job.PayloadJSON)
		}
		return true, nil
	}

	if err := w.jobs.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

var errBadPayload = errors.New("bad history payload")

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	var e storage.HistoryEntry
	if err := json.Unmarshal([]byte(job.PayloadJSON), &e); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if e.ID == "" || e.Owner == "" {
		return fmt.Errorf("%w: missing id or owner", errBadPayload)
	}
	if _, err := w.sink.AppendHistory(ctx, e); err != nil {
		return fmt.Errorf("appending %s: %w", e.ID, err)
	}
	return nil
}
