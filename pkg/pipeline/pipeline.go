// Package pipeline sequences extraction and load for one ETL run.
//
// The pipeline recovers nothing: any error from the paginator or the
// scheduler is logged and returned unchanged, next to a Run describing how far
// the invocation got.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/batch"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/config"
	"github.com/Sternrassler/animal-etl/pkg/model"
	"github.com/Sternrassler/animal-etl/pkg/pagination"
	"github.com/Sternrassler/animal-etl/pkg/transform"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_runs_total",
		Help: "Pipeline runs by final status",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "animal_etl_run_duration_seconds",
		Help:    "Wall time of a pipeline run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	idsCollected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animal_etl_ids_collected",
		Help: "IDs collected by the last pipeline run",
	})
)

// Status is the state of a Run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
)

// Run describes one invocation. It is not persisted.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	IDs        int
	Batches    int
	Status     Status
	Summary    *batch.Summary
}

// Elapsed returns the wall time of the run, or the time so far while running.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Collector gathers every ID to load.
type Collector interface {
	CollectIDs(ctx context.Context) ([]int64, error)
}

// Loader processes a full ID list.
type Loader interface {
	Run(ctx context.Context, ids []int64) (*batch.Summary, error)
}

// Source answers single-page and single-record lookups.
type Source interface {
	FetchPage(ctx context.Context, page int) (*model.ListingPage, error)
	FetchDetail(ctx context.Context, id int64) (*model.DetailRecord, error)
}

// Pipeline wires a Collector to a Loader.
type Pipeline struct {
	source    Source
	collector Collector
	loader    Loader
	logger    zerolog.Logger
}

// New creates a pipeline from its collaborators.
func New(source Source, collector Collector, loader Loader, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:    source,
		collector: collector,
		loader:    loader,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// FromConfig builds the client, paginator, transformer and scheduler described
// by cfg. cache may be nil.
func FromConfig(cfg config.Config, cache client.DetailCache, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ccfg := client.DefaultConfig(cfg.BaseURL)
	ccfg.UserAgent = cfg.UserAgent
	ccfg.Timeout = cfg.Timeout
	ccfg.Retry = client.DefaultRetryPolicy(cfg.Timeout)
	ccfg.Retry.MaxAttempts = cfg.MaxRetries
	ccfg.Retry.BaseDelay = cfg.RetryDelay
	ccfg.Retry.Multiplier = cfg.BackoffMultiplier
	ccfg.RateLimit = cfg.RateLimit
	ccfg.Cache = cache

	c, err := client.New(ccfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	sched, err := batch.NewScheduler(c, c, transform.New(time.Local, logger),
		batch.Config{BatchSize: cfg.BatchSize, Workers: cfg.MaxWorkers}, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return New(c, pagination.NewPaginator(c, pagination.DefaultConfig(), logger), sched, logger), nil
}

// Run collects every ID and loads them. An empty listing is a no-op with
// StatusEmpty. Errors from either stage are returned unchanged.
func (p *Pipeline) Run(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Status:    StatusRunning,
	}
	logger := p.logger.With().Str("run_id", run.ID.String()).Logger()
	logger.Info().Msg("Starting ETL process")

	ids, err := p.collector.CollectIDs(ctx)
	if err != nil {
		return p.finish(logger, run, err)
	}
	run.IDs = len(ids)
	idsCollected.Set(float64(len(ids)))
	logger.Info().Int("ids", len(ids)).Msg("Collected animal IDs")

	if len(ids) == 0 {
		logger.Warn().Msg("No animal IDs found, nothing to load")
		return p.finish(logger, run, nil)
	}

	summary, err := p.loader.Run(ctx, ids)
	run.Summary = summary
	if summary != nil {
		run.Batches = summary.Chunks
	}
	return p.finish(logger, run, err)
}

func (p *Pipeline) finish(logger zerolog.Logger, run *Run, err error) (*Run, error) {
	run.FinishedAt = time.Now()
	switch {
	case err != nil:
		run.Status = StatusFailed
	case run.IDs == 0:
		run.Status = StatusEmpty
	default:
		run.Status = StatusCompleted
	}

	runsTotal.WithLabelValues(string(run.Status)).Inc()
	runDuration.Observe(run.Elapsed().Seconds())

	if err != nil {
		logger.Error().
			Err(err).
			Int("ids", run.IDs).
			Dur("duration", run.Elapsed()).
			Msg("ETL process failed")
		return run, err
	}

	event := logger.Info().
		Str("status", string(run.Status)).
		Int("ids", run.IDs).
		Int("batches", run.Batches).
		Dur("duration", run.Elapsed())
	if run.Summary != nil {
		event = event.
			Int("records_posted", run.Summary.RecordsPosted).
			Int("failed_batches", run.Summary.Failed)
	}
	event.Msgf("ETL process completed in %.2f seconds", run.Elapsed().Seconds())
	return run, nil
}

// FetchOne returns the raw detail record for one animal.
func (p *Pipeline) FetchOne(ctx context.Context, id int64) (*model.DetailRecord, error) {
	return p.source.FetchDetail(ctx, id)
}

// ListPage returns one listing page as served.
func (p *Pipeline) ListPage(ctx context.Context, page int) (*model.ListingPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}
	return p.source.FetchPage(ctx, page)
}
