// filmatlasd is the retrieval API server: it runs the retrieval
// engine per entity kind behind the HTTP API and dispatches
// generation jobs to Temporal.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/config"
	"github.com/filmatlas/filmatlas/internal/featureflags"
	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/httpapi"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/plausibility"
	"github.com/filmatlas/filmatlas/internal/repository"
	"github.com/filmatlas/filmatlas/internal/retrieval"
	"github.com/filmatlas/filmatlas/internal/safety"
	"github.com/filmatlas/filmatlas/internal/tmdb"
	"github.com/filmatlas/filmatlas/internal/tracing"
)

// kindRoutes maps URL segments to entity types.
var kindRoutes = map[string]models.EntityType{
	"movies": models.EntityMovie,
	"people": models.EntityPerson,
	"series": models.EntityTVSeries,
	"shows":  models.EntityTVShow,
}

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

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Observability.Tracing.Enabled,
		ServiceName:  cfg.Observability.Tracing.ServiceName,
		OTLPEndpoint: cfg.Observability.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
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

	flags, err := featureflags.NewStore(cfg.FeatureFlags.Path, logger)
	if err != nil {
		logger.Fatal("Failed to load feature flags", zap.Error(err))
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	sanitizer := safety.NewPromptSanitizer(safety.Config{
		MaxSlugLength:        cfg.Safety.MaxSlugLength,
		MaxTextLength:        cfg.Safety.MaxTextLength,
		MinDescriptionLength: cfg.Safety.MinDescriptionLength,
		MaxDescriptionLength: cfg.Safety.MaxDescriptionLength,
		MinSimilarity:        cfg.Safety.MinSimilarity,
		MaxSimilarity:        cfg.Safety.MaxSimilarity,
	}, logger)
	filter := plausibility.NewFilter(sanitizer)

	verifier := tmdb.NewClient(tmdb.Config{
		BaseURL:        cfg.TMDB.BaseURL,
		APIKey:         cfg.TMDB.APIKey,
		Timeout:        cfg.TMDB.Timeout,
		RequestsPerSec: cfg.TMDB.RequestsPerSec,
		Burst:          cfg.TMDB.Burst,
	}, logger)

	slots := genslot.NewManager(c, cfg.Retrieval.SlotTTL, logger)
	status := jobs.NewStatusStore(c, cfg.Retrieval.JobStatusTTL, logger)
	dispatcher := jobs.NewTemporalDispatcher(temporalClient, cfg.Temporal.TaskQueue, logger)
	queuer := jobs.NewQueuer(slots, status, dispatcher, logger)

	engines := make(map[string]httpapi.Retriever, len(kindRoutes))
	for segment, entityType := range kindRoutes {
		repo, err := repository.NewEntityRepository(db, entityType, logger)
		if err != nil {
			logger.Fatal("Failed to build repository", zap.Error(err))
		}
		kind := retrieval.NewRepositoryKind(repo, logger)
		engines[segment] = retrieval.NewEngine(
			kind, c, cfg.Retrieval.CacheTTL,
			flags, sanitizer, filter, verifier, queuer, logger,
		)
	}

	mux := http.NewServeMux()
	httpapi.NewRetrievalHandler(engines, logger).RegisterRoutes(mux)
	httpapi.NewJobStatusHandler(status, logger).RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
}
