package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/pkg/resilience"
)

func TestGuard_PassesThrough(t *testing.T) {
	g := Guard(testMemory(t), resilience.NewBreaker(resilience.DefaultBreakerOpts))
	ctx := context.Background()
	vin := "1HGCM82633A004352"

	out, err := g.RecordProcessed(ctx, "Columbia Honda", vin, domain.TypeNew, day("2026-08-27"))
	if err != nil || out != domain.WriteInserted {
		t.Fatalf("write = %v, %v", out, err)
	}
	recs, err := g.LookupRecent(ctx, vin, 5)
	if err != nil || len(recs) != 1 {
		t.Fatalf("lookup = %d records, %v", len(recs), err)
	}
	n, err := g.PurgeOlderThan(ctx, "Columbia Honda", 0)
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
}

type downLedger struct{}

func (downLedger) LookupRecent(context.Context, string, int) ([]domain.VinHistoryRecord, error) {
	return nil, errors.New("bolt connection refused")
}

func (downLedger) RecordProcessed(context.Context, string, string, domain.VehicleType, time.Time) (domain.WriteOutcome, error) {
	return "", errors.New("bolt connection refused")
}

func (downLedger) PurgeOlderThan(context.Context, string, int) (int64, error) {
	return 0, errors.New("bolt connection refused")
}

// Once the breaker trips, further lookups fail fast with the breaker error
// instead of hitting the store again.
func TestGuard_TripsOpen(t *testing.T) {
	g := Guard(downLedger{}, resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 2,
		Timeout:       time.Minute,
	}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.LookupRecent(ctx, "1HGCM82633A004352", 5); err == nil {
			t.Fatal("want error")
		}
	}
	_, err := g.LookupRecent(ctx, "1HGCM82633A004352", 5)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
}
