// Command decision-worker consumes dealership observation batches from NATS,
// decides each VIN against its scan history in Neo4j, and publishes order
// requests for processable vehicles.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/silverfoxmkt/lotflow/engine/cao"
	"github.com/silverfoxmkt/lotflow/engine/decision"
	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/engine/history"
	"github.com/silverfoxmkt/lotflow/pkg/metrics"
	"github.com/silverfoxmkt/lotflow/pkg/mid"
	"github.com/silverfoxmkt/lotflow/pkg/resilience"
)

var met = metrics.New()

var (
	mRunsTotal      = met.Counter("lotflow_runs_total", "Observation batches processed")
	mProcessedTotal = met.Counter("lotflow_vins_processed_total", "VINs decided process")
	mSkippedTotal   = met.Counter("lotflow_vins_skipped_total", "VINs decided skip")
	mInvalidTotal   = met.Counter("lotflow_vins_invalid_total", "Observations dropped before decisioning")
	mErrorsTotal    = met.Counter("lotflow_vin_errors_total", "Per-VIN history or publish failures")
	mOrdersTotal    = met.Counter("lotflow_orders_published_total", "Order requests published")
)

func main() {
	var (
		natsURL      = flag.String("nats", nats.DefaultURL, "NATS server URL")
		neo4jURL     = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser    = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass    = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		aliasesFile  = flag.String("aliases", "", "dealership aliases JSON file (canonical -> variants)")
		cooldownDays = flag.Int("cooldown-days", 1, "same-dealership skip window in days")
		typeDays     = flag.Int("type-window-days", 7, "same-type skip window in days")
		window       = flag.Int("history-window", 5, "history records consulted per VIN")
		workers      = flag.Int("workers", 8, "parallel per-VIN decisions")
		port         = flag.String("port", "9090", "ops HTTP port (health, status, metrics)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(context.Background(), config{
		natsURL:     *natsURL,
		neo4jURL:    *neo4jURL,
		neo4jUser:   *neo4jUser,
		neo4jPass:   *neo4jPass,
		aliasesFile: *aliasesFile,
		port:        *port,
		decision: decision.Config{
			SameDealerCooldownDays: *cooldownDays,
			SameTypeWindowDays:     *typeDays,
			HistoryWindow:          *window,
			Workers:                *workers,
		},
	}, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

type config struct {
	natsURL     string
	neo4jURL    string
	neo4jUser   string
	neo4jPass   string
	aliasesFile string
	port        string
	decision    decision.Config
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var aliases *domain.AliasMap
	if cfg.aliasesFile != "" {
		var err error
		if aliases, err = domain.LoadAliasesFile(cfg.aliasesFile); err != nil {
			return fmt.Errorf("load aliases: %w", err)
		}
		logger.Info("aliases loaded", "dealerships", len(aliases.Canonicals()))
	}

	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}
	logger.Info("connected to Neo4j")

	nc, err := nats.Connect(cfg.natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()
	logger.Info("connected to NATS")

	ledger := history.Guard(
		history.NewStore(driver, aliases),
		resilience.NewBreaker(resilience.DefaultBreakerOpts),
	)
	engine := decision.New(cfg.decision, aliases, ledger, logger)

	var (
		mu      sync.Mutex
		lastRun *cao.RunSummary
	)
	runner := cao.NewRunner(cao.Deps{
		Engine:  engine,
		History: ledger,
		Orders:  &cao.NATSOrders{Conn: nc},
		Logger:  logger,
		OnSummary: func(s cao.RunSummary) {
			mRunsTotal.Inc()
			mProcessedTotal.Add(int64(s.Processed))
			mSkippedTotal.Add(int64(s.Skipped))
			mInvalidTotal.Add(int64(s.Invalid))
			mErrorsTotal.Add(int64(s.Errors))
			mOrdersTotal.Add(int64(s.OrdersPublished))
			mu.Lock()
			lastRun = &s
			mu.Unlock()
		},
	})

	sub, err := cao.StartConsumer(nc, runner)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Unsubscribe()
	logger.Info("consuming", "subject", cao.ObservationsSubject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		s := lastRun
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if s == nil {
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(s)
	})
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("decision-worker"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server starting", "port", cfg.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
