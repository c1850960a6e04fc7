// Package metrics exposes the Prometheus registry shared by the animal ETL
// packages. All metrics are defined in their respective packages (client,
// cache, pagination, batch, pipeline) via promauto, which registers them on
// Registry.
//
// This package provides the /metrics handler and the metric catalogue.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the animal ETL packages.
var Registry = prometheus.DefaultRegisterer

// Path is where Serve exposes the metrics.
const Path = "/metrics"

// Handler returns the HTTP handler exposing every registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes Handler on addr until ctx is done and returns the bound address.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) (net.Addr, error) {
	logger = logger.With().Str("component", "metrics").Logger()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return ln.Addr(), nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - animal_etl_requests_total{op, status} (Counter): Attempts by operation and HTTP status
//   - animal_etl_request_duration_seconds{op} (Histogram): Attempt duration by operation
//   - animal_etl_request_errors_total{class} (Counter): Failed attempts by class (client, server, network, decode, request)
//
// Retry Metrics (pkg/client):
//   - animal_etl_retries_total{error_class} (Counter): Retry attempts by error class
//   - animal_etl_retry_backoff_seconds{error_class} (Histogram): Backoff waits by error class
//   - animal_etl_retry_exhausted_total{error_class} (Counter): Calls that used every attempt
//
// Cache Metrics (pkg/cache):
//   - animal_etl_cache_hits_total{layer} (Counter): Detail records served from redis
//   - animal_etl_cache_misses_total (Counter): Detail lookups that went to the network
//   - animal_etl_cache_size_bytes{layer} (Gauge): Bytes written to the cache
//   - animal_etl_cache_errors_total{operation} (Counter): Cache operation errors
//
// Extraction Metrics (pkg/pagination):
//   - animal_etl_pages_total{outcome} (Counter): Listing pages fetched or skipped
//
// Load Metrics (pkg/batch):
//   - animal_etl_chunks_total{outcome} (Counter): Chunks posted, empty or failed
//   - animal_etl_records_total{stage, outcome} (Counter): Records per stage (fetch, transform, post)
//   - animal_etl_chunk_duration_seconds (Histogram): Time to process one chunk
//   - animal_etl_active_workers (Gauge): Workers currently inside a chunk
//
// Run Metrics (pkg/pipeline):
//   - animal_etl_runs_total{status} (Counter): Pipeline runs by final status
//   - animal_etl_run_duration_seconds (Histogram): Wall time of a pipeline run
//   - animal_etl_ids_collected (Gauge): IDs collected by the last run
//
// Example Prometheus Queries:
//
//   # Records dropped at fetch
//   rate(animal_etl_records_total{stage="fetch",outcome="failed"}[5m])
//
//   # Cache Hit Rate
//   sum(rate(animal_etl_cache_hits_total[5m])) /
//   (sum(rate(animal_etl_cache_hits_total[5m])) + sum(rate(animal_etl_cache_misses_total[5m])))
//
//   # P95 Detail Latency
//   histogram_quantile(0.95, rate(animal_etl_request_duration_seconds_bucket{op="fetch_detail"}[5m]))
