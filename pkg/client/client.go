// Package client provides the Animals API transport: listing pages, detail
// records and batch posts, each wrapped in a retry policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/cache"
	"github.com/Sternrassler/animal-etl/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// API paths.
const (
	ListingPath = "/animals/v1/animals"
	DetailPath  = "/animals/v1/animals/%d"
	HomePath    = "/animals/v1/home"
)

// Operation names used in errors, logs and metric labels.
const (
	OpFetchPage   = "fetch_page"
	OpFetchDetail = "fetch_detail"
	OpPostBatch   = "post_batch"
)

// maxErrorBody bounds how much of an error response ends up in StatusError.
const maxErrorBody = 256

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_requests_total",
		Help: "Total API requests by operation and status",
	}, []string{"op", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animal_etl_request_duration_seconds",
		Help:    "API request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"op"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_request_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// DetailCache stores raw detail bodies keyed by animal ID.
type DetailCache interface {
	GetDetail(ctx context.Context, id int64) ([]byte, error)
	SetDetail(ctx context.Context, id int64, data []byte) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Animals API, e.g. "http://localhost:3123".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request attempt.
	Timeout time.Duration

	// Retry policy applied to every call.
	Retry RetryPolicy

	// RateLimit in requests per second (0 disables).
	RateLimit float64

	// Cache for detail responses (nil disables). A hit is returned without
	// contacting the API, so records may be as old as the cache TTL.
	Cache DetailCache
}

// DefaultConfig returns a default configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	timeout := 30 * time.Second
	return Config{
		BaseURL:   baseURL,
		UserAgent: "animal-etl/0.1.0",
		Timeout:   timeout,
		Retry:     DefaultRetryPolicy(timeout),
	}
}

// Client talks to the Animals API. It is safe for concurrent use; the only
// state shared across calls is the connection pool and the optional limiter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if err := ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Retry.MaxDelay <= 0 || cfg.Retry.MaxDelay > cfg.Timeout {
		cfg.Retry.MaxDelay = cfg.Timeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		config:  cfg,
		logger:  logger.With().Str("component", "client").Logger(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// ValidateBaseURL accepts absolute http and https URLs with a host.
func ValidateBaseURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base url must be an absolute http or https url (got %q)", raw)
	}
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchPage fetches one listing page. Pages are numbered from 1.
func (c *Client) FetchPage(ctx context.Context, page int) (*model.ListingPage, error) {
	endpoint := ListingPath + "?page=" + strconv.Itoa(page)

	var out model.ListingPage
	if err := c.call(ctx, OpFetchPage, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchDetail fetches the detail record for one animal. A configured cache is
// consulted first; cache failures are logged and fall through to the API.
func (c *Client) FetchDetail(ctx context.Context, id int64) (*model.DetailRecord, error) {
	endpoint := fmt.Sprintf(DetailPath, id)

	if rec, ok := c.cachedDetail(ctx, id); ok {
		return rec, nil
	}

	var out model.DetailRecord
	if err := c.call(ctx, OpFetchDetail, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}

	if c.config.Cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := c.config.Cache.SetDetail(ctx, id, data); err != nil {
				c.logger.Warn().Err(err).Int64("animal_id", id).Msg("Failed to cache detail")
			}
		}
	}
	return &out, nil
}

// PostBatch posts transformed records to the home endpoint. Batches above
// MaxBatchRecords are rejected with a ValidationError before any network call.
func (c *Client) PostBatch(ctx context.Context, records []model.TransformedRecord) (*model.HomeResponse, error) {
	if len(records) > MaxBatchRecords {
		c.logger.Error().
			Int("batch_size", len(records)).
			Int("limit", MaxBatchRecords).
			Msg("Batch exceeds sink limit")
		return nil, &ValidationError{Field: "batch size", Limit: MaxBatchRecords, Got: len(records)}
	}

	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var out model.HomeResponse
	if err := c.call(ctx, OpPostBatch, http.MethodPost, HomePath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// cachedDetail returns a cached detail record if one exists and decodes.
func (c *Client) cachedDetail(ctx context.Context, id int64) (*model.DetailRecord, bool) {
	if c.config.Cache == nil {
		return nil, false
	}

	data, err := c.config.Cache.GetDetail(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Int64("animal_id", id).Msg("Cache get error")
		}
		return nil, false
	}

	var rec model.DetailRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn().Err(err).Int64("animal_id", id).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	c.logger.Debug().Int64("animal_id", id).Msg("Detail served from cache")
	return &rec, true
}

// call runs one request under the retry policy and decodes the response into out.
func (c *Client) call(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	logger := c.logger.With().Str("op", op).Str("endpoint", endpoint).Logger()

	var respBody []byte
	attempts, err := c.config.Retry.Do(ctx, logger, func() error {
		var reqErr error
		respBody, reqErr = c.send(ctx, op, method, endpoint, body)
		return reqErr
	})
	if err != nil {
		logger.Error().Err(err).Int("attempts", attempts).Msg("Request failed")
		return &TransportError{Op: op, Endpoint: endpoint, Attempts: attempts, Err: err}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		logger.Error().Err(err).Msg("Failed to decode response")
		return &TransportError{
			Op:       op,
			Endpoint: endpoint,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %w", ErrDecode, err),
		}
	}
	return nil
}

// send performs a single HTTP attempt and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &requestError{fmt.Errorf("rate limiter: %w", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &requestError{fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Msg("Executing API request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(op).Observe(time.Since(startTime).Seconds())
	if err != nil {
		errClass := classifyError(err)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(op, string(errClass)+"_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(op, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	requestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("API request error")

		return nil, &StatusError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp.Status, respBody),
		}
	}

	return respBody, nil
}

// errorMessage prefers a short response body over the bare status line.
func errorMessage(status string, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return status
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}
