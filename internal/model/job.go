package model

import "time"

// Job status constants
const (
	JobQueued  = "QUEUED"
	JobRunning = "RUNNING"
	JobDone    = "DONE"
	JobFailed  = "FAILED"
)

// Job kind constants
const (
	JobCrawl    = "crawl"
	JobGenerate = "generate"
)

// Job is a unit of background work picked up by the worker.
type Job struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Target    string  `json:"target,omitempty"`
	Status    string  `json:"status"`
	Summary   *string `json:"summary,omitempty"`
	ErrorInfo *string `json:"error_info,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// JobFilter holds query parameters for listing jobs.
type JobFilter struct {
	Status []string
	Kind   []string
}

// NewJob creates a new Job with QUEUED status.
func NewJob(id, kind, target string) Job {
	now := time.Now().UTC().Format(time.RFC3339)
	return Job{
		ID:        id,
		Kind:      kind,
		Target:    target,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanRetry reports whether the job may be re-queued.
func (j *Job) CanRetry() bool {
	return j.Status == JobFailed
}
