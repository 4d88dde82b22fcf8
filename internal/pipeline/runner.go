package pipeline

import (
	"context"
	"time"

	"jobharbor/internal/logging"
	"jobharbor/internal/scheduler"
	"jobharbor/internal/scraper"
	"jobharbor/pkg/utils"
)

// ExtractorSource resolves an extractor for a site. *scraper.Registry
// satisfies it.
type ExtractorSource interface {
	Get(site string) (scraper.Extractor, error)
}

// JobRunner executes one scrape attempt end to end: resolve the extractor,
// fetch the page, parse it, and hand the entries to the pipeline. It is the
// scheduler's Runner; the scheduler owns retries around it.
type JobRunner struct {
	extractors ExtractorSource
	pipeline   *Pipeline
	logger     logging.Logger
}

func NewJobRunner(extractors ExtractorSource, p *Pipeline) *JobRunner {
	return &JobRunner{
		extractors: extractors,
		pipeline:   p,
		logger:     logging.GetGlobalLogger().WithField("component", "runner"),
	}
}

func (r *JobRunner) Run(ctx context.Context, job scheduler.Job) error {
	extractor, err := r.extractors.Get(job.Site)
	if err != nil {
		return err
	}

	start := time.Now()
	page, err := extractor.Fetch(ctx, job.Query)
	if err != nil {
		return err
	}

	raws, err := extractor.Parse(page)
	if err != nil {
		return err
	}

	for i := range raws {
		if len(raws[i].Skills) == 0 && raws[i].Description != "" {
			raws[i].Skills = extractor.ExtractSkills(raws[i].Description)
		}
	}

	stats, err := r.pipeline.Process(ctx, job.ID, job.Site, raws)
	r.logger.Info("Scrape attempt finished", map[string]interface{}{
		"job_id":     job.ID,
		"site":       job.Site,
		"attempt":    job.AttemptCount,
		"entries":    stats.Processed,
		"new":        stats.New,
		"duplicates": stats.Duplicates,
		"errors":     stats.Errors,
		"duration":   utils.FormatDuration(time.Since(start)),
	})
	return err
}
