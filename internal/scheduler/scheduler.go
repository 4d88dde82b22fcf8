package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"jobharbor/internal/config"
	"jobharbor/internal/events"
	"jobharbor/internal/logging"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// Runner executes one scrape job attempt: fetch, parse, and feed the
// pipeline. The scheduler owns the retry policy around it.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Stats is a point-in-time snapshot of the scheduler counters.
type Stats struct {
	JobsSubmitted int64 `json:"jobs_submitted"`
	JobsSucceeded int64 `json:"jobs_succeeded"`
	JobsFailed    int64 `json:"jobs_failed"`
	JobsRetried   int64 `json:"jobs_retried"`
	JobsCancelled int64 `json:"jobs_cancelled"`
}

// Scheduler owns the job queue and dispatches due jobs to a bounded worker
// pool. The global concurrency ceiling bounds total parallelism; the per-site
// rate limiter (inside the runner's fetch path) bounds per-site call rate.
type Scheduler struct {
	cfg    *config.Config
	runner Runner
	bus    *events.Bus
	logger logging.Logger

	mu    sync.Mutex
	queue *jobQueue
	jobs  map[string]*Job
	seq   uint64

	wake    chan struct{}
	sem     chan struct{}
	cron    *cron.Cron
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool

	statsMu sync.Mutex
	stats   Stats
}

// New creates a scheduler. Jobs are submitted on demand with Submit and
// periodically per site according to the configured run intervals.
func New(cfg *config.Config, runner Runner, bus *events.Bus) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		bus:    bus,
		logger: logging.GetGlobalLogger().WithField("component", "scheduler"),
		queue:  newJobQueue(),
		jobs:   make(map[string]*Job),
		wake:   make(chan struct{}, 1),
		sem:    make(chan struct{}, cfg.Scheduler.MaxConcurrent),
		cron:   cron.New(),
	}
}

// Start launches the dispatch loop and the per-site cron entries. Each site
// gets one immediate run so the store fills without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group, runCtx = errgroup.WithContext(runCtx)

	for site, sc := range s.cfg.Sites {
		site, sc := site, sc
		spec := fmt.Sprintf("@every %s", sc.RunInterval)
		if _, err := s.cron.AddFunc(spec, func() {
			if _, err := s.Submit(site, models.SearchQuery{Keywords: sc.Keywords, Location: sc.Location}); err != nil {
				s.logger.Error("periodic submit failed", map[string]interface{}{
					"site":  site,
					"error": err.Error(),
				})
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("cron entry for %s: %w", site, err)
		}

		if _, err := s.Submit(site, models.SearchQuery{Keywords: sc.Keywords, Location: sc.Location}); err != nil {
			cancel()
			return err
		}
	}

	s.cron.Start()
	s.group.Go(func() error {
		return s.dispatch(runCtx)
	})

	s.logger.Info("scheduler started", map[string]interface{}{
		"sites":          len(s.cfg.Sites),
		"max_concurrent": s.cfg.Scheduler.MaxConcurrent,
	})
	return nil
}

// Stop halts the cron entries, cancels dispatching, and drains workers.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	err := s.group.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// Submit queues a job for the given site. The site must be configured.
func (s *Scheduler) Submit(site string, query models.SearchQuery) (Job, error) {
	sc, ok := s.cfg.Sites[site]
	if !ok {
		return Job{}, utils.NewConfigError(fmt.Sprintf("unknown site %q", site))
	}

	s.mu.Lock()
	s.seq++
	job := newJob(site, query, sc.MaxAttempts, s.seq)
	s.jobs[job.ID] = job
	s.queue.push(job)
	s.statsMu.Lock()
	s.stats.JobsSubmitted++
	s.statsMu.Unlock()
	s.publishLocked(job, "", StatePending)
	s.mu.Unlock()

	s.notify()

	s.logger.Debug("job submitted", map[string]interface{}{
		"job_id": job.ID,
		"site":   site,
	})
	return job.snapshot(), nil
}

// Cancel removes a job that is waiting between attempts (Pending or
// Retrying). A job whose fetch is in flight is left to finish or time out.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || (job.State != StatePending && job.State != StateRetrying) {
		return false
	}

	if s.queue.remove(jobID) == nil {
		return false
	}

	s.transitionLocked(job, StateCancelled, "cancelled before run")
	s.statsMu.Lock()
	s.stats.JobsCancelled++
	s.statsMu.Unlock()
	return true
}

// Job returns a snapshot of the job with the given ID.
func (s *Scheduler) Job(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// Jobs returns snapshots of all known jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.snapshot())
	}
	return out
}

// dispatch pops due jobs in scheduled order and hands them to workers,
// blocking on the concurrency semaphore when the pool is saturated.
func (s *Scheduler) dispatch(ctx context.Context) error {
	for {
		s.mu.Lock()
		next := s.queue.peek()
		if next != nil && !next.due().After(time.Now()) {
			job := s.queue.pop()
			if job.State == StateRetrying {
				// Backoff delay elapsed; the job is schedulable again.
				s.transitionLocked(job, StatePending, "")
			}
			s.mu.Unlock()

			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}

			s.mu.Lock()
			job.AttemptCount++
			job.NextRetryAt = time.Time{}
			s.transitionLocked(job, StateRunning, "")
			snap := job.snapshot()
			s.mu.Unlock()

			s.group.Go(func() error {
				defer func() {
					<-s.sem
					s.notify()
				}()
				err := s.runner.Run(ctx, snap)
				s.complete(snap.ID, err)
				return nil
			})
			continue
		}
		s.mu.Unlock()

		var timer *time.Timer
		var timerC <-chan time.Time
		if next != nil {
			timer = time.NewTimer(time.Until(next.due()))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// complete applies the retry policy to a finished attempt.
func (s *Scheduler) complete(jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.terminal() {
		return
	}

	switch {
	case err == nil:
		s.transitionLocked(job, StateSucceeded, "")
		s.statsMu.Lock()
		s.stats.JobsSucceeded++
		s.statsMu.Unlock()

	case errors.Is(err, context.Canceled):
		s.transitionLocked(job, StateCancelled, "shutdown during run")
		s.statsMu.Lock()
		s.stats.JobsCancelled++
		s.statsMu.Unlock()

	case utils.IsParseError(err):
		// Site structure changed; retrying will not help until the
		// extractor is fixed. Keep the diagnostic for operator review.
		s.transitionLocked(job, StateFailed, err.Error())
		s.statsMu.Lock()
		s.stats.JobsFailed++
		s.statsMu.Unlock()

	case utils.IsRetryable(err) && job.AttemptCount < job.MaxAttempts:
		delay := backoffDelay(s.cfg.Scheduler.BackoffBase.Std(), s.cfg.Scheduler.BackoffMax.Std(), job.AttemptCount)
		job.NextRetryAt = time.Now().Add(delay)
		s.transitionLocked(job, StateRetrying, err.Error())
		s.queue.push(job)
		s.statsMu.Lock()
		s.stats.JobsRetried++
		s.statsMu.Unlock()
		s.logger.Warn("job attempt failed, retrying", map[string]interface{}{
			"job_id":  job.ID,
			"site":    job.Site,
			"attempt": job.AttemptCount,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

	default:
		s.transitionLocked(job, StateFailed, err.Error())
		s.statsMu.Lock()
		s.stats.JobsFailed++
		s.statsMu.Unlock()
	}
}

// transitionLocked updates the job state and publishes the transition.
// Callers hold s.mu.
func (s *Scheduler) transitionLocked(job *Job, to State, errMsg string) {
	from := job.State
	job.State = to
	if errMsg != "" {
		job.LastError = errMsg
	}
	s.publishLocked(job, string(from), to)
}

func (s *Scheduler) publishLocked(job *Job, from string, to State) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Kind:    events.KindJobTransition,
		Site:    job.Site,
		JobID:   job.ID,
		From:    from,
		To:      string(to),
		Attempt: job.AttemptCount,
		Error:   job.LastError,
	})
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// backoffDelay grows exponentially with the attempt count, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// GetStats returns a snapshot of the scheduler counters.
func (s *Scheduler) GetStats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// QueueLen reports how many jobs are waiting to run.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}
