// Command animal-etl loads every animal from the Animals API, transforms the
// records and posts them to the home endpoint in batches.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Sternrassler/animal-etl/pkg/cache"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/config"
	"github.com/Sternrassler/animal-etl/pkg/logging"
	"github.com/Sternrassler/animal-etl/pkg/metrics"
	"github.com/Sternrassler/animal-etl/pkg/pipeline"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// env is the state shared by every command of one invocation.
type env struct {
	cfg    config.Config
	logger zerolog.Logger
	cache  *cache.Manager
}

func newApp(stdout, stderr io.Writer) *cli.App {
	e := &env{}

	return &cli.App{
		Name:      "animal-etl",
		Usage:     "Process animal data from the Animals API",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a .env configuration file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.Bool("verbose") {
				cfg.LogLevel = string(logging.LevelDebug)
			}
			e.cfg = cfg
			e.logger = logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.LogLevel),
				Format: logging.Format(cfg.LogFormat),
				Output: stderr,
			})
			return nil
		},
		After: func(c *cli.Context) error {
			if e.cache != nil {
				return e.cache.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the complete ETL pipeline over every animal",
				Action: e.run,
			},
			{
				Name:  "fetch-animal",
				Usage: "fetch details for one animal",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "animal-id",
						Usage:    "animal ID to fetch",
						Required: true,
					},
				},
				Action: e.fetchAnimal,
			},
			{
				Name:  "list-animals",
				Usage: "list the animals on one listing page",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "page number to fetch",
						Value: 1,
					},
				},
				Action: e.listAnimals,
			},
		},
	}
}

// pipeline builds the pipeline, opening the cache and the metrics endpoint
// when configured.
func (e *env) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	if e.cfg.MetricsAddr != "" {
		if _, err := metrics.Serve(ctx, e.cfg.MetricsAddr, e.logger); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	var detailCache client.DetailCache
	if e.cfg.RedisURL != "" {
		m, err := cache.Open(ctx, e.cfg.RedisURL, e.cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		e.cache = m
		detailCache = m
		e.logger.Info().Dur("ttl", m.TTL()).Msg("Detail cache enabled")
	}

	return pipeline.FromConfig(e.cfg, detailCache, e.logger)
}

func (e *env) run(c *cli.Context) error {
	out := c.App.Writer
	fmt.Fprintln(out, "Starting Animal ETL Pipeline...")
	fmt.Fprintf(out, "API Base URL: %s\n", e.cfg.BaseURL)
	fmt.Fprintf(out, "Batch Size: %d\n", e.cfg.BatchSize)
	fmt.Fprintf(out, "Max Workers: %d\n", e.cfg.MaxWorkers)
	fmt.Fprintln(out, strings.Repeat("-", 50))

	p, err := e.pipeline(c.Context)
	if err != nil {
		return err
	}

	run, err := p.Run(c.Context)
	if err != nil {
		if c.Context.Err() != nil {
			return fmt.Errorf("pipeline interrupted: %w", err)
		}
		return fmt.Errorf("ETL pipeline failed: %w", err)
	}

	fmt.Fprintf(out, "Run %s %s: %d IDs", run.ID, run.Status, run.IDs)
	if run.Summary != nil {
		fmt.Fprintf(out, ", %d batches, %d records posted, %d batches failed",
			run.Batches, run.Summary.RecordsPosted, run.Summary.Failed)
	}
	fmt.Fprintf(out, " in %.2fs\n", run.Elapsed().Seconds())
	fmt.Fprintln(out, "ETL Pipeline completed successfully!")
	return nil
}

func (e *env) fetchAnimal(c *cli.Context) error {
	id := c.Int64("animal-id")

	p, err := e.pipeline(c.Context)
	if err != nil {
		return err
	}

	rec, err := p.FetchOne(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to fetch animal %d: %w", id, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Animal %d details:\n%s\n", id, data)
	return nil
}

func (e *env) listAnimals(c *cli.Context) error {
	page := c.Int("page")

	p, err := e.pipeline(c.Context)
	if err != nil {
		return err
	}

	lp, err := p.ListPage(c.Context, page)
	if err != nil {
		return fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Page %d of %d:\n", page, lp.TotalPages)
	for _, item := range lp.Items {
		born := "Unknown"
		if item.BornAt.Valid {
			born = fmt.Sprint(item.BornAt.Millis)
		}
		fmt.Fprintf(out, "  ID: %d, Name: %s, Born: %s\n", item.ID, item.Name, born)
	}
	return nil
}
