// worker runs the Temporal worker that executes generation jobs:
// verify, generate, validate, persist, finalize.
package main

import (
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/activities"
	"github.com/filmatlas/filmatlas/internal/ai"
	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/config"
	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/repository"
	"github.com/filmatlas/filmatlas/internal/safety"
	"github.com/filmatlas/filmatlas/internal/tmdb"
	"github.com/filmatlas/filmatlas/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer c.Close()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer db.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	provider, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Timeout:     cfg.AI.Timeout,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AI provider", zap.Error(err))
	}

	safetyCfg := safety.Config{
		MaxSlugLength:        cfg.Safety.MaxSlugLength,
		MaxTextLength:        cfg.Safety.MaxTextLength,
		MinDescriptionLength: cfg.Safety.MinDescriptionLength,
		MaxDescriptionLength: cfg.Safety.MaxDescriptionLength,
		MinSimilarity:        cfg.Safety.MinSimilarity,
		MaxSimilarity:        cfg.Safety.MaxSimilarity,
	}
	sanitizer := safety.NewPromptSanitizer(safetyCfg, logger)
	htmlSanitizer := safety.NewHTMLSanitizer(logger)
	outputValidator := safety.NewOutputValidator(safetyCfg, htmlSanitizer, sanitizer, logger)
	dataValidator := safety.NewDataValidator(logger)

	verifier := tmdb.NewClient(tmdb.Config{
		BaseURL:        cfg.TMDB.BaseURL,
		APIKey:         cfg.TMDB.APIKey,
		Timeout:        cfg.TMDB.Timeout,
		RequestsPerSec: cfg.TMDB.RequestsPerSec,
		Burst:          cfg.TMDB.Burst,
	}, logger)

	stores := make(map[models.EntityType]activities.EntityStore)
	for _, entityType := range []models.EntityType{
		models.EntityMovie, models.EntityPerson, models.EntityTVSeries, models.EntityTVShow,
	} {
		repo, err := repository.NewEntityRepository(db, entityType, logger)
		if err != nil {
			logger.Fatal("Failed to build repository", zap.Error(err))
		}
		stores[entityType] = repo
	}

	slots := genslot.NewManager(c, cfg.Retrieval.SlotTTL, logger)
	status := jobs.NewStatusStore(c, cfg.Retrieval.JobStatusTTL, logger)
	acts := activities.NewGenerationActivities(
		stores, verifier, provider,
		sanitizer, outputValidator, dataValidator,
		status, slots, c, logger,
	)

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(workflows.GenerationWorkflow, workflow.RegisterOptions{
		Name: jobs.GenerationWorkflowName,
	})
	w.RegisterActivity(acts)

	logger.Info("Generation worker starting",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("Worker stopped", zap.Error(err))
	}
}
