// Command feed-poller polls configured dealer inventory feeds on an interval
// and publishes each scrape as an observation batch to NATS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/silverfoxmkt/lotflow/engine/cao"
	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/engine/feed"
	"github.com/silverfoxmkt/lotflow/pkg/fn"
	"github.com/silverfoxmkt/lotflow/pkg/natsutil"
)

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		sourcesFile = flag.String("sources", "sources.json", "dealer feed sources JSON file")
		interval    = flag.Duration("interval", 30*time.Minute, "poll interval")
		once        = flag.Bool("once", false, "poll once and exit")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*natsURL, *sourcesFile, *interval, *once, logger); err != nil {
		logger.Error("poller exited with error", "err", err)
		os.Exit(1)
	}
}

func loadSources(path string) ([]feed.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sources []feed.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("sources %s: %w", path, err)
	}
	return sources, nil
}

func run(natsURL, sourcesFile string, interval time.Duration, once bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sources, err := loadSources(sourcesFile)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured in %s", sourcesFile)
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	client := feed.NewClient()
	logger.Info("polling feeds", "sources", len(sources), "interval", interval)

	poll := func() {
		for _, src := range sources {
			if ctx.Err() != nil {
				return
			}
			result := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[[]domain.VehicleObservation] {
				return fn.FromPair(client.Fetch(ctx, src))
			})
			observations, err := result.Unwrap()
			if err != nil {
				logger.Error("feed fetch failed", "dealership", src.Dealership, "error", err)
				continue
			}
			batch := cao.ObservationBatch{
				RunID:        uuid.NewString(),
				Dealership:   src.Dealership,
				Observations: observations,
				ScrapedAt:    time.Now(),
			}
			if err := natsutil.Publish(ctx, nc, cao.ObservationsSubject, batch); err != nil {
				logger.Error("batch publish failed", "dealership", src.Dealership, "error", err)
				continue
			}
			logger.Info("batch published",
				"run_id", batch.RunID,
				"dealership", src.Dealership,
				"observations", len(observations),
			)
		}
	}

	poll()
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			poll()
		}
	}
}
