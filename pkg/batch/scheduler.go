package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/model"
	"github.com/Sternrassler/animal-etl/pkg/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for chunk processing.
var (
	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_chunks_total",
		Help: "Chunks processed by outcome",
	}, []string{"outcome"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_records_total",
		Help: "Records handled by stage and outcome",
	}, []string{"stage", "outcome"})

	chunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "animal_etl_chunk_duration_seconds",
		Help:    "Wall time to fetch, transform and post one chunk",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animal_etl_active_workers",
		Help: "Workers currently processing a chunk",
	})
)

// DetailFetcher fetches one detail record.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id int64) (*model.DetailRecord, error)
}

// BatchPoster posts one batch of transformed records.
type BatchPoster interface {
	PostBatch(ctx context.Context, records []model.TransformedRecord) (*model.HomeResponse, error)
}

// Transformer converts fetched records, isolating per-record failures.
type Transformer interface {
	TransformBatch(recs []model.DetailRecord) ([]model.TransformedRecord, []*transform.TransformError)
}

// Config holds scheduler configuration.
type Config struct {
	// BatchSize is the number of IDs per chunk (1..client.MaxBatchRecords).
	BatchSize int

	// Workers is the number of concurrent workers.
	Workers int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize: client.MaxBatchRecords,
		Workers:   4,
	}
}

// Scheduler runs the fetch → transform → post stage over a worker pool.
type Scheduler struct {
	fetcher     DetailFetcher
	poster      BatchPoster
	transformer Transformer
	config      Config
	logger      zerolog.Logger
	progress    atomic.Pointer[Progress]
}

// NewScheduler creates a new scheduler.
func NewScheduler(fetcher DetailFetcher, poster BatchPoster, transformer Transformer, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if fetcher == nil || poster == nil || transformer == nil {
		return nil, fmt.Errorf("fetcher, poster and transformer are required")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > client.MaxBatchRecords {
		return nil, fmt.Errorf("batch size must be between 1 and %d (got %d)", client.MaxBatchRecords, cfg.BatchSize)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1 (got %d)", cfg.Workers)
	}

	return &Scheduler{
		fetcher:     fetcher,
		poster:      poster,
		transformer: transformer,
		config:      cfg,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Progress returns the counter of the current or last run, nil before the first.
func (s *Scheduler) Progress() *Progress {
	return s.progress.Load()
}

// Run partitions ids, processes every chunk and blocks until all workers have
// exited. Chunk failures are reported in the summary, not as an error; the
// error is non-nil only when ctx was cancelled before every chunk started.
func (s *Scheduler) Run(ctx context.Context, ids []int64) (*Summary, error) {
	start := time.Now()
	chunks := Partition(ids, s.config.BatchSize)
	progress := newProgress(len(chunks))
	s.progress.Store(progress)

	summary := &Summary{Chunks: len(chunks), IDs: len(ids)}
	if len(chunks) == 0 {
		return summary, nil
	}

	workers := min(s.config.Workers, len(chunks))

	s.logger.Info().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Int("batch_size", s.config.BatchSize).
		Int("workers", workers).
		Msg("Starting batch processing")

	// Every chunk is enqueued up front; closing the queue is the stop signal.
	queue := make(chan Chunk, len(chunks))
	for _, chunk := range chunks {
		queue <- chunk
	}
	close(queue)

	tallies := make([]tally, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, i, queue, progress, &tallies[i], &wg)
	}
	wg.Wait()

	for i := range tallies {
		summary.add(&tallies[i])
	}
	summary.Duration = time.Since(start)

	s.logger.Info().
		Int("chunks", summary.Chunks).
		Int("posted", summary.Posted).
		Int("empty", summary.Empty).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("records_posted", summary.RecordsPosted).
		Int("fetch_failures", summary.FetchFailures).
		Int("transform_failures", summary.TransformFailures).
		Dur("duration", summary.Duration).
		Msg("Completed processing all chunks")

	if summary.Skipped > 0 {
		return summary, fmt.Errorf("batch processing cancelled with %d of %d chunks not started: %w",
			summary.Skipped, summary.Chunks, ctx.Err())
	}
	return summary, nil
}

// worker drains the queue. After cancellation it keeps draining but only
// counts the remaining chunks as skipped.
func (s *Scheduler) worker(ctx context.Context, workerID int, queue <-chan Chunk, progress *Progress, t *tally, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := s.logger.With().Int("worker_id", workerID).Logger()

	for chunk := range queue {
		if ctx.Err() != nil {
			t.skipped = append(t.skipped, chunk.Index)
			continue
		}

		activeWorkers.Inc()
		res := s.processChunk(context.WithoutCancel(ctx), logger, chunk)
		activeWorkers.Dec()

		t.record(res)
		chunksTotal.WithLabelValues(string(res.Outcome)).Inc()

		done := progress.complete()
		logger.Info().
			Int("chunk", chunk.Index).
			Str("outcome", string(res.Outcome)).
			Int("completed", done).
			Int("total", progress.Total()).
			Msg("Chunk completed")
	}

	logger.Debug().Int("chunks_processed", t.processed).Msg("Worker completed")
}

// processChunk fetches, transforms and posts one chunk. It never panics out:
// a panic inside the chunk is turned into a failed result.
func (s *Scheduler) processChunk(ctx context.Context, logger zerolog.Logger, chunk Chunk) (res ChunkResult) {
	start := time.Now()
	res = ChunkResult{Index: chunk.Index, Requested: len(chunk.IDs)}
	logger = logger.With().Int("chunk", chunk.Index).Int("size", len(chunk.IDs)).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("chunk %d panicked: %v", chunk.Index, r)
			logger.Error().Err(res.Err).Msg("Chunk processing panicked")
		}
		chunkDuration.Observe(time.Since(start).Seconds())
	}()

	logger.Debug().Msg("Processing chunk")

	details := make([]model.DetailRecord, 0, len(chunk.IDs))
	for _, id := range chunk.IDs {
		rec, err := s.fetcher.FetchDetail(ctx, id)
		if err != nil {
			recordsTotal.WithLabelValues("fetch", "failed").Inc()
			logger.Error().Err(err).Int64("animal_id", id).Msg("Failed to fetch animal, dropping from chunk")
			res.FetchFailures = append(res.FetchFailures, RecordFailure{ID: id, Err: err})
			continue
		}
		recordsTotal.WithLabelValues("fetch", "ok").Inc()
		details = append(details, *rec)
	}
	res.Fetched = len(details)

	transformed, terrs := s.transformer.TransformBatch(details)
	for _, te := range terrs {
		res.TransformFailures = append(res.TransformFailures, RecordFailure{ID: te.ID, Err: te})
	}
	recordsTotal.WithLabelValues("transform", "ok").Add(float64(len(transformed)))
	recordsTotal.WithLabelValues("transform", "failed").Add(float64(len(terrs)))
	if len(terrs) > 0 {
		logger.Warn().Int("count", len(terrs)).Msg("Encountered transformation errors")
	}

	if len(transformed) == 0 {
		res.Outcome = OutcomeEmpty
		logger.Warn().Msg("No animals to post in this chunk")
		return res
	}

	ack, err := s.poster.PostBatch(ctx, transformed)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		recordsTotal.WithLabelValues("post", "failed").Add(float64(len(transformed)))
		logger.Error().Err(err).Int("records", len(transformed)).Msg("Failed to post chunk")
		return res
	}

	res.Outcome = OutcomePosted
	res.Posted = len(transformed)
	res.Message = ack.Message
	recordsTotal.WithLabelValues("post", "ok").Add(float64(len(transformed)))
	logger.Info().
		Int("records", len(transformed)).
		Str("message", ack.Message).
		Dur("duration", time.Since(start)).
		Msg("Successfully posted chunk")
	return res
}
