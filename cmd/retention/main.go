// Command retention purges VIN scan history older than the retention window,
// one dealership at a time. Meant to run from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/engine/history"
)

func main() {
	var (
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
		aliasesFile = flag.String("aliases", "", "dealership aliases JSON file; canonicals are purged")
		dealerships = flag.String("dealerships", "", "comma-separated dealerships to purge (overrides -aliases)")
		days        = flag.Int("days", 30, "retention window in days")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*neo4jURL, *neo4jUser, *neo4jPass, *aliasesFile, *dealerships, *days, logger); err != nil {
		logger.Error("retention failed", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(neo4jURL, user, pass, aliasesFile, dealershipsFlag string, days int, logger *slog.Logger) error {
	ctx := context.Background()

	var aliases *domain.AliasMap
	if aliasesFile != "" {
		var err error
		if aliases, err = domain.LoadAliasesFile(aliasesFile); err != nil {
			return fmt.Errorf("load aliases: %w", err)
		}
	}

	var targets []string
	if dealershipsFlag != "" {
		for _, d := range strings.Split(dealershipsFlag, ",") {
			if d = strings.TrimSpace(d); d != "" {
				targets = append(targets, d)
			}
		}
	} else {
		targets = aliases.Canonicals()
	}
	if len(targets) == 0 {
		return fmt.Errorf("no dealerships to purge; pass -dealerships or -aliases")
	}

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}

	store := history.NewStore(driver, aliases)
	var total int64
	for _, d := range targets {
		n, err := store.PurgeOlderThan(ctx, d, days)
		if err != nil {
			logger.Error("purge failed", "dealership", d, "error", err)
			continue
		}
		logger.Info("purged", "dealership", d, "scans", n, "days", days)
		total += n
	}
	logger.Info("retention complete", "dealerships", len(targets), "scans_purged", total)
	return nil
}
