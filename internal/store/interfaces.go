package store

import (
	"context"

	"github.com/Jojodayolo/testforge/internal/model"
)

// JobCounts holds the number of jobs per status.
type JobCounts struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// JobReader provides read access to jobs.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, f model.JobFilter) ([]model.Job, error)
	CountJobs(ctx context.Context) (JobCounts, error)
}

// JobWriter provides write access to jobs.
type JobWriter interface {
	CreateJob(ctx context.Context, job model.Job) error
	UpdateJobStatus(ctx context.Context, id, newStatus string, summary, errorInfo *string) error
	RetryJob(ctx context.Context, id string) error
}

// JobClaimer provides atomic claim operations for background processing.
type JobClaimer interface {
	ClaimNextQueued(ctx context.Context) (*model.Job, error)
	ResetStaleRunning(ctx context.Context) (int64, error)
}

// PageReader provides read access to crawled page records.
type PageReader interface {
	ListPages(ctx context.Context) ([]model.PageRecord, error)
	GetPage(ctx context.Context, url string) (*model.PageRecord, error)
}

// GenerationReader provides read access to generations and their turns.
type GenerationReader interface {
	ListGenerations(ctx context.Context, jobID string) ([]model.Generation, error)
	GetGeneration(ctx context.Context, id string) (*model.GenerationWithTurns, error)
}

// Repository combines the operations the API layer needs.
type Repository interface {
	JobReader
	JobWriter
	PageReader
	GenerationReader
}
