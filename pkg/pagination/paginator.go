package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrNoPages is reported when no listing page could be read before giving up.
var ErrNoPages = errors.New("no listing page could be fetched")

var pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "animal_etl_pages_total",
	Help: "Listing pages processed by outcome",
}, []string{"outcome"})

// progressEvery controls how often progress is logged at info level.
const progressEvery = 50

// ExtractionError is the fatal failure to obtain the identifier list.
type ExtractionError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Config holds paginator configuration.
type Config struct {
	// MaxLeadingFailures is how many consecutive pages may fail before
	// total_pages is known.
	MaxLeadingFailures int
}

// DefaultConfig returns the default paginator configuration.
func DefaultConfig() Config {
	return Config{
		MaxLeadingFailures: 3,
	}
}

// PageFetcher fetches a single listing page.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (*model.ListingPage, error)
}

// Result is the outcome of a full listing walk.
type Result struct {
	IDs          []int64
	TotalPages   int
	PagesFetched int
	SkippedPages []int
}

// Paginator collects IDs across every listing page.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPaginator creates a new paginator.
func NewPaginator(fetcher PageFetcher, config Config, logger zerolog.Logger) *Paginator {
	if config.MaxLeadingFailures <= 0 {
		config.MaxLeadingFailures = DefaultConfig().MaxLeadingFailures
	}
	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  logger.With().Str("component", "paginator").Logger(),
	}
}

// CollectIDs returns every ID in page order, then within-page order.
// Duplicates across pages are kept.
func (p *Paginator) CollectIDs(ctx context.Context) ([]int64, error) {
	res, err := p.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// Collect walks the listing and reports which pages were skipped.
func (p *Paginator) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{IDs: []int64{}, TotalPages: -1}
	leadingFailures := 0

	p.logger.Info().Msg("Starting to fetch all animal IDs")

	for page := 1; res.TotalPages < 0 || page <= res.TotalPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &ExtractionError{Page: page, Err: err}
		}

		lp, err := p.fetcher.FetchPage(ctx, page)
		if err == nil {
			err = lp.Validate()
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &ExtractionError{Page: page, Err: ctxErr}
			}
			if res.TotalPages < 0 && isMalformed(err) {
				return nil, &ExtractionError{Page: page, Err: err}
			}

			pagesTotal.WithLabelValues("skipped").Inc()
			res.SkippedPages = append(res.SkippedPages, page)
			p.logger.Error().Err(err).Int("page", page).Msg("Failed to fetch page, skipping")

			if res.TotalPages < 0 {
				leadingFailures++
				if leadingFailures >= p.config.MaxLeadingFailures {
					return nil, &ExtractionError{
						Page: page,
						Err:  fmt.Errorf("%w: %d consecutive failures: %w", ErrNoPages, leadingFailures, err),
					}
				}
			}
			continue
		}

		if res.TotalPages < 0 {
			res.TotalPages = lp.TotalPages
			p.logger.Info().Int("total_pages", res.TotalPages).Msg("Total pages to fetch")
		}
		leadingFailures = 0

		ids := lp.IDs()
		res.IDs = append(res.IDs, ids...)
		res.PagesFetched++
		pagesTotal.WithLabelValues("fetched").Inc()

		p.logger.Debug().
			Int("page", page).
			Int("total_pages", res.TotalPages).
			Int("items", len(ids)).
			Msg("Fetched page")

		if page%progressEvery == 0 {
			p.logger.Info().
				Int("fetched", page).
				Int("total", res.TotalPages).
				Float64("progress_pct", float64(page)/float64(res.TotalPages)*100).
				Msg("Fetch progress")
		}
	}

	p.logger.Info().
		Int("ids", len(res.IDs)).
		Int("pages", res.PagesFetched).
		Int("skipped", len(res.SkippedPages)).
		Int("total_pages", res.TotalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return res, nil
}

// isMalformed reports errors caused by the response shape rather than transport.
func isMalformed(err error) bool {
	return errors.Is(err, model.ErrMalformedPage) || errors.Is(err, client.ErrDecode)
}
