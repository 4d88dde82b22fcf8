package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharbor/internal/config"
	"jobharbor/internal/events"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// scriptedRunner returns the scripted errors in order, then succeeds.
type scriptedRunner struct {
	mu      sync.Mutex
	script  []error
	calls   int
	delay   time.Duration
	attempt []int
}

func (r *scriptedRunner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.attempt = append(r.attempt, job.AttemptCount)
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if i < len(r.script) {
		return r.script[i]
	}
	return nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testConfig(maxAttempts int) *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler.MaxConcurrent = 2
	cfg.Scheduler.QueueSize = 64
	cfg.Scheduler.BackoffBase = config.Duration(10 * time.Millisecond)
	cfg.Scheduler.BackoffMax = config.Duration(50 * time.Millisecond)
	cfg.Sites = map[string]config.SiteConfig{
		"alpha": {
			Keywords:          "engineer",
			RunInterval:       config.Duration(time.Hour),
			MaxCallsPerWindow: 100,
			WindowDuration:    config.Duration(time.Second),
			MaxAttempts:       maxAttempts,
			FetchTimeout:      config.Duration(time.Second),
		},
	}
	return cfg
}

func waitForState(t *testing.T, s *Scheduler, jobID string, want State) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		j, ok := s.Job(jobID)
		if !ok {
			return false
		}
		job = j
		return j.State == want
	}, 5*time.Second, 5*time.Millisecond, "job never reached state %s", want)
	return job
}

func drainTransitions(sub <-chan events.Event, jobID string) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub:
			if ev.Kind == events.KindJobTransition && ev.JobID == jobID {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestSchedulerRunsSubmittedJob(t *testing.T) {
	runner := &scriptedRunner{}
	sched := New(testConfig(3), runner, nil)

	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	// Start already submitted one job for the configured site.
	jobs := sched.Jobs()
	require.Len(t, jobs, 1)

	job := waitForState(t, sched, jobs[0].ID, StateSucceeded)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, "alpha", job.Site)
}

func TestSchedulerRetriesFetchErrorsThenFails(t *testing.T) {
	fetchErr := utils.NewHTTPFetchError("alpha", "https://example.com", 429)
	runner := &scriptedRunner{script: []error{fetchErr, fetchErr, fetchErr}}

	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(64)

	sched := New(testConfig(3), runner, bus)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	job := waitForState(t, sched, jobs[0].ID, StateFailed)

	assert.Equal(t, 3, job.AttemptCount, "max_attempts bounds the total attempts")
	assert.Equal(t, 3, runner.callCount())
	assert.Contains(t, job.LastError, "429")

	transitions := drainTransitions(sub, job.ID)
	retrying := 0
	for _, ev := range transitions {
		if ev.To == string(StateRetrying) {
			retrying++
		}
	}
	assert.Equal(t, 2, retrying, "three attempts mean two retry waits")
	assert.Equal(t, string(StateFailed), transitions[len(transitions)-1].To)

	stats := sched.GetStats()
	assert.Equal(t, int64(1), stats.JobsSubmitted)
	assert.Equal(t, int64(2), stats.JobsRetried)
	assert.Equal(t, int64(1), stats.JobsFailed)
}

func TestSchedulerRetrySucceedsMidway(t *testing.T) {
	fetchErr := utils.NewFetchError("alpha", "https://example.com", errors.New("connection reset"))
	runner := &scriptedRunner{script: []error{fetchErr}}

	sched := New(testConfig(3), runner, nil)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	job := waitForState(t, sched, jobs[0].ID, StateSucceeded)
	assert.Equal(t, 2, job.AttemptCount)
}

func TestSchedulerParseErrorFailsImmediately(t *testing.T) {
	runner := &scriptedRunner{script: []error{
		utils.NewParseError("alpha", "job card container not found"),
	}}

	sched := New(testConfig(3), runner, nil)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	job := waitForState(t, sched, jobs[0].ID, StateFailed)

	assert.Equal(t, 1, job.AttemptCount, "parse errors must not be retried")
	assert.Contains(t, job.LastError, "job card container not found")
}

func TestSchedulerSubmitUnknownSite(t *testing.T) {
	sched := New(testConfig(3), &scriptedRunner{}, nil)

	_, err := sched.Submit("nope", models.SearchQuery{Keywords: "x"})
	require.Error(t, err)

	var ce *utils.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestSchedulerCancelQueuedJob(t *testing.T) {
	sched := New(testConfig(3), &scriptedRunner{}, nil)

	// Not started, so the job stays queued.
	job, err := sched.Submit("alpha", models.SearchQuery{Keywords: "engineer"})
	require.NoError(t, err)

	assert.True(t, sched.Cancel(job.ID))
	got, ok := sched.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, got.State)

	// A terminal job cannot be cancelled again.
	assert.False(t, sched.Cancel(job.ID))
	assert.Equal(t, 0, sched.QueueLen())
}

// blockingRunner holds every Run call until released and records the peak
// number of simultaneous calls.
type blockingRunner struct {
	mu      sync.Mutex
	running int
	peak    int
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
	r.mu.Unlock()

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return nil
}

func (r *blockingRunner) snapshot() (running, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.peak
}

func TestSchedulerConcurrencyCeiling(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	sched := New(testConfig(3), runner, nil)

	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	// One job came from Start; pile on four more than the pool can hold.
	for i := 0; i < 5; i++ {
		_, err := sched.Submit("alpha", models.SearchQuery{Keywords: "engineer"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		running, _ := runner.snapshot()
		return running == 2
	}, 5*time.Second, 5*time.Millisecond, "pool never filled")

	// The rest must stay queued while both worker slots are occupied.
	time.Sleep(50 * time.Millisecond)
	running, peak := runner.snapshot()
	assert.Equal(t, 2, running)
	assert.Equal(t, 2, peak, "more jobs ran at once than the configured ceiling")

	close(runner.release)
	for _, job := range sched.Jobs() {
		waitForState(t, sched, job.ID, StateSucceeded)
	}

	_, peak = runner.snapshot()
	assert.Equal(t, 2, peak)

	stats := sched.GetStats()
	assert.Equal(t, int64(6), stats.JobsSubmitted)
	assert.Equal(t, int64(6), stats.JobsSucceeded)
	assert.Equal(t, int64(0), stats.JobsFailed)
}

func TestSchedulerStopCancelsInFlight(t *testing.T) {
	runner := &scriptedRunner{delay: 5 * time.Second}
	sched := New(testConfig(3), runner, nil)

	require.NoError(t, sched.Start(context.Background()))

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	waitForState(t, sched, jobs[0].ID, StateRunning)

	require.NoError(t, sched.Stop())
	job, ok := sched.Job(jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, job.State)
}

func TestBackoffDelay(t *testing.T) {
	base := 10 * time.Millisecond
	max := 60 * time.Millisecond

	assert.Equal(t, 10*time.Millisecond, backoffDelay(base, max, 1))
	assert.Equal(t, 20*time.Millisecond, backoffDelay(base, max, 2))
	assert.Equal(t, 40*time.Millisecond, backoffDelay(base, max, 3))
	assert.Equal(t, 60*time.Millisecond, backoffDelay(base, max, 4))
	assert.Equal(t, 60*time.Millisecond, backoffDelay(base, max, 10))
}

func TestJobQueueOrdering(t *testing.T) {
	q := newJobQueue()
	now := time.Now()

	late := newJob("alpha", models.SearchQuery{}, 3, 1)
	late.ScheduledAt = now.Add(time.Hour)
	early := newJob("alpha", models.SearchQuery{}, 3, 2)
	early.ScheduledAt = now
	tied := newJob("alpha", models.SearchQuery{}, 3, 3)
	tied.ScheduledAt = now

	q.push(late)
	q.push(tied)
	q.push(early)

	assert.Equal(t, early.ID, q.pop().ID)
	assert.Equal(t, tied.ID, q.pop().ID, "equal due times pop in submission order")
	assert.Equal(t, late.ID, q.pop().ID)
	assert.Equal(t, 0, q.len())
}
