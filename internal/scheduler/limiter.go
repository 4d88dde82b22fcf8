package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobharbor/internal/config"
	"jobharbor/internal/logging"
)

// RateLimiter gates every outbound call per site with a sliding window plus a
// minimum interval between calls. Waiters for the same site queue FIFO on the
// site's ticket channel; different sites never contend with each other.
type RateLimiter struct {
	mu     sync.Mutex
	gates  map[string]*siteGate
	logger logging.Logger
}

// siteGate holds the rate limit state for one site. The ticket serializes
// waiters FIFO; callsMu guards the call history so observers can read it
// without queueing behind a blocked Acquire.
type siteGate struct {
	ticket   chan struct{}
	interval *rate.Limiter
	maxCalls int
	window   time.Duration

	callsMu sync.Mutex
	calls   []time.Time
}

func newSiteGate(maxCalls int, window, minInterval time.Duration) *siteGate {
	ticket := make(chan struct{}, 1)
	ticket <- struct{}{}

	interval := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		interval = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	return &siteGate{
		ticket:   ticket,
		interval: interval,
		maxCalls: maxCalls,
		window:   window,
	}
}

// NewRateLimiter creates a limiter with a gate per configured site.
func NewRateLimiter(sites map[string]config.SiteConfig) *RateLimiter {
	rl := &RateLimiter{
		gates:  make(map[string]*siteGate, len(sites)),
		logger: logging.GetGlobalLogger().WithField("component", "rate_limiter"),
	}

	for site, sc := range sites {
		rl.gates[site] = newSiteGate(sc.MaxCallsPerWindow, sc.WindowDuration.Std(), sc.MinInterval.Std())
	}

	return rl
}

// Acquire blocks until the site permits another call. It returns an error
// only when ctx is cancelled; capacity exhaustion is expressed as waiting,
// never as failure.
func (rl *RateLimiter) Acquire(ctx context.Context, site string) error {
	gate := rl.gate(site)

	select {
	case <-gate.ticket:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { gate.ticket <- struct{}{} }()

	// Sliding window: wait for the oldest call to age out of the window.
	for {
		now := time.Now()
		cutoff := now.Add(-gate.window)

		gate.callsMu.Lock()
		kept := gate.calls[:0]
		for _, t := range gate.calls {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		gate.calls = kept

		if len(gate.calls) < gate.maxCalls {
			gate.callsMu.Unlock()
			break
		}

		wait := gate.calls[0].Add(gate.window).Sub(now)
		gate.callsMu.Unlock()
		rl.logger.Debug("rate limit window full", map[string]interface{}{
			"site": site,
			"wait": wait.String(),
		})

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if err := gate.interval.Wait(ctx); err != nil {
		return err
	}

	gate.callsMu.Lock()
	gate.calls = append(gate.calls, time.Now())
	gate.callsMu.Unlock()
	return nil
}

// CallsInWindow reports how many calls the site has made in the current window.
func (rl *RateLimiter) CallsInWindow(site string) int {
	gate := rl.gate(site)

	gate.callsMu.Lock()
	defer gate.callsMu.Unlock()

	cutoff := time.Now().Add(-gate.window)
	n := 0
	for _, t := range gate.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// gate returns the site's gate, creating a permissive one for sites that
// were never configured so callers block on the ticket only.
func (rl *RateLimiter) gate(site string) *siteGate {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if gate, ok := rl.gates[site]; ok {
		return gate
	}

	rl.logger.Warn("no rate limit configured for site, using permissive gate", map[string]interface{}{
		"site": site,
	})

	gate := newSiteGate(int(^uint(0)>>1), time.Second, 0)
	rl.gates[site] = gate
	return gate
}
