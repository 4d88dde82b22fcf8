package scheduler

import (
	"time"

	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// State is the lifecycle state of a scrape job. All transitions are driven
// by the scheduler; Succeeded, Failed and Cancelled are terminal.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateRetrying  State = "retrying"
	StateCancelled State = "cancelled"
)

// Job is one unit of scraping work: a site plus a search query.
type Job struct {
	ID           string             `json:"id"`
	Site         string             `json:"site"`
	Query        models.SearchQuery `json:"query"`
	State        State              `json:"state"`
	AttemptCount int                `json:"attempt_count"`
	MaxAttempts  int                `json:"max_attempts"`
	LastError    string             `json:"last_error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ScheduledAt  time.Time          `json:"scheduled_at"`
	NextRetryAt  time.Time          `json:"next_retry_at,omitempty"`

	// seq breaks due-time ties in creation order.
	seq uint64
}

// newJob creates a Pending job due immediately.
func newJob(site string, query models.SearchQuery, maxAttempts int, seq uint64) *Job {
	now := time.Now()
	return &Job{
		ID:          utils.GenerateRequestID(),
		Site:        site,
		Query:       query,
		State:       StatePending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		ScheduledAt: now,
		seq:         seq,
	}
}

// due returns the time the job becomes eligible to run.
func (j *Job) due() time.Time {
	if !j.NextRetryAt.IsZero() {
		return j.NextRetryAt
	}
	return j.ScheduledAt
}

// terminal reports whether the job has reached a terminal state.
func (j *Job) terminal() bool {
	return j.State == StateSucceeded || j.State == StateFailed || j.State == StateCancelled
}

// snapshot returns a copy safe to hand out past the scheduler's lock.
func (j *Job) snapshot() Job {
	return *j
}
