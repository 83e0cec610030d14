package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Jojodayolo/testforge/internal/model"
)

// Processor runs a single job and returns a JSON summary of its outcome.
type Processor interface {
	Process(ctx context.Context, job *model.Job) (string, error)
}

// JobClaimer provides atomic claim and status update operations.
type JobClaimer interface {
	ClaimNextQueued(ctx context.Context) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, id, newStatus string, summary, errorInfo *string) error
}

// Worker polls for QUEUED jobs and runs them.
type Worker struct {
	claimer   JobClaimer
	processor Processor
	interval  time.Duration
}

// New creates a new Worker.
func New(claimer JobClaimer, processor Processor, interval time.Duration) *Worker {
	return &Worker{claimer: claimer, processor: processor, interval: interval}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return
		default:
		}

		job, err := w.claimer.ClaimNextQueued(ctx)
		if err != nil {
			slog.Error("worker claim error", "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.run(ctx, job)
	}
}

func (w *Worker) run(ctx context.Context, job *model.Job) {
	slog.Info("processing job", "job_id", job.ID, "kind", job.Kind, "target", job.Target)
	summary, err := w.processor.Process(ctx, job)
	if err != nil && ctx.Err() != nil {
		// Left RUNNING; ResetStaleRunning re-queues it on the next start.
		slog.Warn("job interrupted by shutdown", "job_id", job.ID)
		return
	}

	var sum *string
	if summary != "" {
		sum = &summary
	}
	if err != nil {
		slog.Error("job failed", "job_id", job.ID, "error", err)
		errInfo := w.buildErrorInfo(err)
		if sErr := w.claimer.UpdateJobStatus(ctx, job.ID, model.JobFailed, sum, &errInfo); sErr != nil {
			slog.Error("failed to set FAILED status", "job_id", job.ID, "error", sErr)
		}
		return
	}

	if err := w.claimer.UpdateJobStatus(ctx, job.ID, model.JobDone, sum, nil); err != nil {
		slog.Error("failed to set DONE status", "job_id", job.ID, "error", err)
	} else {
		slog.Info("job is now DONE", "job_id", job.ID)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func (w *Worker) buildErrorInfo(err error) string {
	step := "unknown"
	var sn stepNamer
	if errors.As(err, &sn) {
		step = sn.StepName()
	}
	info := model.ErrorInfo{
		FailedStep: step,
		Message:    err.Error(),
		Retryable:  true,
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	return info.ToJSON()
}
