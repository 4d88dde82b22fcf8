package pipeline

import (
	"context"
	"errors"
	"time"

	"jobharbor/internal/events"
	"jobharbor/internal/logging"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// ProcessStats summarizes one batch of raw postings through the pipeline.
type ProcessStats struct {
	Processed  int
	New        int
	Duplicates int
	Errors     int
}

// Pipeline composes the normalizer, dedup index, and sink. Each raw posting
// is processed independently: one bad entry never aborts the batch.
type Pipeline struct {
	normalizer *Normalizer
	index      Index
	sink       Sink
	bus        *events.Bus
	logger     logging.Logger

	backoffBase time.Duration
	backoffMax  time.Duration
	maxAttempts int
}

// New creates a pipeline. The backoff parameters govern sink write retries,
// mirroring the scheduler's job retry policy.
func New(normalizer *Normalizer, index Index, sink Sink, bus *events.Bus, backoffBase, backoffMax time.Duration, maxAttempts int) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		normalizer:  normalizer,
		index:       index,
		sink:        sink,
		bus:         bus,
		logger:      logging.GetGlobalLogger().WithField("component", "pipeline"),
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		maxAttempts: maxAttempts,
	}
}

// Process normalizes, deduplicates, and stores one batch of raw postings.
// jobID tags the emitted upsert events with the originating scrape job. It
// returns an error only when a sink write failed after exhausting its
// retries; duplicates and per-entry problems are reflected in the stats.
func (p *Pipeline) Process(ctx context.Context, jobID, site string, raws []models.RawPosting) (ProcessStats, error) {
	var stats ProcessStats
	var lastErr error

	for i := range raws {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		posting := p.normalizer.Normalize(raws[i])
		stats.Processed++

		result, err := p.index.CheckAndMark(ctx, posting.Fingerprint, posting.CanonicalID())
		if err != nil {
			stats.Errors++
			lastErr = err
			p.publishUpsert(jobID, site, &posting, events.OutcomeError, err)
			continue
		}

		if result == ResultDuplicate {
			stats.Duplicates++
			p.publishUpsert(jobID, site, &posting, events.OutcomeDuplicate, nil)
			p.logger.Debug("duplicate posting suppressed", map[string]interface{}{
				"site":        site,
				"fingerprint": posting.Fingerprint,
			})
			continue
		}

		if err := p.upsertWithRetry(ctx, &posting); err != nil {
			// Release the claim so a later run can write this posting.
			if ferr := p.index.Forget(ctx, posting.Fingerprint); ferr != nil {
				p.logger.Error("failed to release dedup claim", map[string]interface{}{
					"fingerprint": posting.Fingerprint,
					"error":       ferr.Error(),
				})
			}
			stats.Errors++
			lastErr = err
			p.publishUpsert(jobID, site, &posting, events.OutcomeError, err)
			continue
		}

		stats.New++
		p.publishUpsert(jobID, site, &posting, events.OutcomeNew, nil)
	}

	return stats, lastErr
}

// upsertWithRetry retries transient sink failures with exponential backoff,
// independent of re-running the extractor.
func (p *Pipeline) upsertWithRetry(ctx context.Context, posting *models.Posting) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.backoffBase
			for i := 2; i < attempt; i++ {
				delay *= 2
			}
			if delay > p.backoffMax {
				delay = p.backoffMax
			}

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := p.sink.Upsert(ctx, posting)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *utils.SinkError
		if !errors.As(err, &se) {
			return err
		}

		p.logger.Warn("sink upsert failed", map[string]interface{}{
			"canonical_id": posting.CanonicalID(),
			"attempt":      attempt,
			"error":        err.Error(),
		})
	}

	return lastErr
}

func (p *Pipeline) publishUpsert(jobID, site string, posting *models.Posting, outcome events.UpsertOutcome, err error) {
	if p.bus == nil {
		return
	}

	ev := events.Event{
		Kind:        events.KindPostingUpsert,
		Site:        site,
		JobID:       jobID,
		CanonicalID: posting.CanonicalID(),
		Fingerprint: posting.Fingerprint,
		Outcome:     outcome,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.bus.Publish(ev)
}
