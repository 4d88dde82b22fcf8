package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"jobharbor/internal/config"
	"jobharbor/internal/events"
	"jobharbor/internal/logging"
	"jobharbor/internal/pipeline"
	"jobharbor/internal/scheduler"
	"jobharbor/internal/scraper"
	"jobharbor/internal/storage"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	adapters := make([]logging.AdapterConfig, 0, len(cfg.Logging.Adapters))
	for _, a := range cfg.Logging.Adapters {
		adapters = append(adapters, logging.AdapterConfig{
			Name:    a.Name,
			Type:    a.Type,
			Enabled: a.Enabled,
			Options: a.Options,
		})
	}
	if err := logging.InitializeLogging(cfg.Logging.Level, adapters); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting job pipeline", map[string]interface{}{
		"sites": len(cfg.Sites),
	})

	matcher, err := pipeline.NewSkillMatcher(cfg.Skills.VocabularyPath)
	if err != nil {
		logger.Fatal("Failed to load skill vocabulary", map[string]interface{}{"error": err.Error()})
	}

	limiter := scheduler.NewRateLimiter(cfg.Sites)

	registry, err := scraper.NewRegistry(cfg, limiter, matcher)
	if err != nil {
		logger.Fatal("Failed to build site registry", map[string]interface{}{"error": err.Error()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var index pipeline.Index
	switch cfg.Dedup.Backend {
	case "redis":
		index, err = pipeline.NewRedisIndex(ctx, cfg.Redis.URL, cfg.Dedup.TTL.Std())
		if err != nil {
			logger.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
	default:
		index = pipeline.NewMemoryIndex()
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open posting store", map[string]interface{}{"error": err.Error()})
	}

	bus := events.NewBus()
	normalizer := pipeline.NewNormalizer(matcher, pipeline.FingerprintScope(cfg.Dedup.Scope))
	pipe := pipeline.New(normalizer, index, store, bus,
		cfg.Scheduler.BackoffBase.Std(), cfg.Scheduler.BackoffMax.Std(), maxSinkAttempts(cfg))
	runner := pipeline.NewJobRunner(registry, pipe)
	sched := scheduler.New(cfg, runner, bus)

	// Vocabulary hot reload shares the cron runner model the scheduler uses
	// for site intervals.
	reloader := cron.New()
	if cfg.Skills.ReloadInterval > 0 {
		_, err := reloader.AddFunc("@every "+cfg.Skills.ReloadInterval.String(), func() {
			if err := matcher.Reload(); err != nil {
				logger.Warn("Skill vocabulary reload failed", map[string]interface{}{"error": err.Error()})
			}
		})
		if err != nil {
			logger.Fatal("Failed to schedule vocabulary reload", map[string]interface{}{"error": err.Error()})
		}
		reloader.Start()
	}

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", map[string]interface{}{"error": err.Error()})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down pipeline...")

	reloader.Stop()
	cancel()
	if err := sched.Stop(); err != nil {
		logger.Error("Error stopping scheduler", map[string]interface{}{"error": err.Error()})
	}
	stats := sched.GetStats()
	logger.Info("Scheduler totals", map[string]interface{}{
		"submitted": stats.JobsSubmitted,
		"succeeded": stats.JobsSucceeded,
		"failed":    stats.JobsFailed,
		"retried":   stats.JobsRetried,
		"cancelled": stats.JobsCancelled,
	})
	bus.Close()
	if err := index.Close(); err != nil {
		logger.Error("Error closing dedup index", map[string]interface{}{"error": err.Error()})
	}
	if err := store.Close(); err != nil {
		logger.Error("Error closing posting store", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Pipeline shutdown complete")
}

// maxSinkAttempts mirrors the strictest site retry budget so sink retries
// never outlast job retries.
func maxSinkAttempts(cfg *config.Config) int {
	max := 1
	for _, sc := range cfg.Sites {
		if sc.MaxAttempts > max {
			max = sc.MaxAttempts
		}
	}
	return max
}
