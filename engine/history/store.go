// Package history is the VIN scan history store: an append-only ledger of
// per-dealership VIN scans backed by Neo4j, one VinScan node per
// (vin, dealership, order date). The ledger interpretation is what makes the
// decision engine's most-recent-N lookups meaningful; a single continuously
// rewritten row per vin+dealer could never answer them.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

// dayFormat is how order dates are stored on scan nodes. Scans are
// day-granular, and the format sorts lexically in date order.
const dayFormat = "2006-01-02"

// DefaultLookupLimit is how many recent scans decisioning consults.
const DefaultLookupLimit = 5

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// sessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// Store is the Neo4j-backed scan ledger.
type Store struct {
	driver     neo4j.DriverWithContext
	aliases    *domain.AliasMap
	now        func() time.Time                 // for testing
	newSession func(ctx context.Context) runner // for testing
}

// NewStore creates a Store. The alias map canonicalizes dealership names
// before any write so the ledger never holds variant spellings.
func NewStore(driver neo4j.DriverWithContext, aliases *domain.AliasMap) *Store {
	return &Store{driver: driver, aliases: aliases, now: time.Now}
}

func (s *Store) session(ctx context.Context) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// LookupRecent returns up to limit scans for a VIN across all dealerships,
// most recent order date first.
func (s *Store) LookupRecent(ctx context.Context, vin string, limit int) ([]domain.VinHistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n:VinScan {vin: $vin})
	           RETURN n ORDER BY n.order_date DESC LIMIT $limit`
	res, err := sess.Run(ctx, cypher, map[string]any{"vin": vin, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("history: lookup %s: %w", vin, err)
	}

	var records []domain.VinHistoryRecord
	for res.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](res.Record(), "n")
		if err != nil {
			return nil, fmt.Errorf("history: lookup %s: %w", vin, err)
		}
		records = append(records, recordFromProps(node.Props))
	}
	return records, nil
}

// RecordProcessed upserts a scan for (vin, dealership, order date). Calling
// it again with identical arguments is a no-op; the same key with a new
// vehicle type refreshes the stored type. The write itself is a MERGE so
// concurrent batches hitting the same key collapse on the store's native
// conflict handling.
func (s *Store) RecordProcessed(ctx context.Context, dealership, vin string, vtype domain.VehicleType, orderDate time.Time) (domain.WriteOutcome, error) {
	canonical := s.aliases.Resolve(dealership)
	params := map[string]any{
		"vin":        vin,
		"dealership": canonical,
		"order_date": orderDate.Format(dayFormat),
		"type":       string(vtype),
		"now":        s.now().UTC().Format(time.RFC3339),
	}

	sess := s.session(ctx)
	defer sess.Close(ctx)

	prior, exists, err := s.priorType(ctx, sess, params)
	if err != nil {
		return "", fmt.Errorf("history: record %s at %s: %w", vin, canonical, err)
	}
	if exists && prior == string(vtype) {
		return domain.WriteSkippedDuplicate, nil
	}

	cypher := `MERGE (n:VinScan {vin: $vin, dealership: $dealership, order_date: $order_date})
	           ON CREATE SET n.vehicle_type = $type, n.created_at = $now, n.updated_at = $now
	           ON MATCH SET n.vehicle_type = $type, n.updated_at = $now`
	if _, err := sess.Run(ctx, cypher, params); err != nil {
		return "", fmt.Errorf("history: record %s at %s: %w", vin, canonical, err)
	}
	if exists {
		return domain.WriteUpdated, nil
	}
	return domain.WriteInserted, nil
}

func (s *Store) priorType(ctx context.Context, sess runner, params map[string]any) (string, bool, error) {
	cypher := `MATCH (n:VinScan {vin: $vin, dealership: $dealership, order_date: $order_date})
	           RETURN n.vehicle_type AS type`
	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return "", false, err
	}
	if !res.Next(ctx) {
		return "", false, nil
	}
	v, _ := res.Record().Get("type")
	t, _ := v.(string)
	return t, true, nil
}

// PurgeOlderThan deletes a dealership's scans with order dates strictly
// older than the retention window. Returns the number of scans removed.
// Retention runs independently of decisioning.
func (s *Store) PurgeOlderThan(ctx context.Context, dealership string, days int) (int64, error) {
	canonical := s.aliases.Resolve(dealership)
	cutoff := s.now().AddDate(0, 0, -days).Format(dayFormat)

	sess := s.session(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n:VinScan {dealership: $dealership})
	           WHERE n.order_date < $cutoff
	           DETACH DELETE n
	           RETURN count(n) AS purged`
	res, err := sess.Run(ctx, cypher, map[string]any{"dealership": canonical, "cutoff": cutoff})
	if err != nil {
		return 0, fmt.Errorf("history: purge %s: %w", canonical, err)
	}
	if !res.Next(ctx) {
		return 0, nil
	}
	v, _ := res.Record().Get("purged")
	n, _ := v.(int64)
	return n, nil
}

// recordFromProps constructs a VinHistoryRecord from VinScan node properties.
func recordFromProps(props map[string]any) domain.VinHistoryRecord {
	rec := domain.VinHistoryRecord{
		VIN:         strProp(props, "vin"),
		Dealership:  strProp(props, "dealership"),
		VehicleType: domain.VehicleType(strProp(props, "vehicle_type")),
	}
	if t, err := time.Parse(dayFormat, strProp(props, "order_date")); err == nil {
		rec.OrderDate = t
	}
	if t, err := time.Parse(time.RFC3339, strProp(props, "created_at")); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, strProp(props, "updated_at")); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
