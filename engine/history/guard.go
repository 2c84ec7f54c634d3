package history

import (
	"context"
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/pkg/resilience"
)

// Ledger is the full scan-ledger surface shared by Store and MemoryStore.
type Ledger interface {
	LookupRecent(ctx context.Context, vin string, limit int) ([]domain.VinHistoryRecord, error)
	RecordProcessed(ctx context.Context, dealership, vin string, vtype domain.VehicleType, orderDate time.Time) (domain.WriteOutcome, error)
	PurgeOlderThan(ctx context.Context, dealership string, days int) (int64, error)
}

// GuardedLedger routes every ledger call through a circuit breaker so a down
// store fails fast for a whole batch instead of timing out VIN by VIN. The
// breaker error surfaces like any other lookup failure and becomes a per-VIN
// HistoryUnavailable upstream.
type GuardedLedger struct {
	inner   Ledger
	breaker *resilience.Breaker
}

// Guard wraps a ledger with a circuit breaker.
func Guard(inner Ledger, breaker *resilience.Breaker) *GuardedLedger {
	return &GuardedLedger{inner: inner, breaker: breaker}
}

func (g *GuardedLedger) LookupRecent(ctx context.Context, vin string, limit int) (recs []domain.VinHistoryRecord, err error) {
	err = g.breaker.Call(ctx, func(ctx context.Context) error {
		var inner error
		recs, inner = g.inner.LookupRecent(ctx, vin, limit)
		return inner
	})
	return recs, err
}

func (g *GuardedLedger) RecordProcessed(ctx context.Context, dealership, vin string, vtype domain.VehicleType, orderDate time.Time) (out domain.WriteOutcome, err error) {
	err = g.breaker.Call(ctx, func(ctx context.Context) error {
		var inner error
		out, inner = g.inner.RecordProcessed(ctx, dealership, vin, vtype, orderDate)
		return inner
	})
	return out, err
}

func (g *GuardedLedger) PurgeOlderThan(ctx context.Context, dealership string, days int) (n int64, err error) {
	err = g.breaker.Call(ctx, func(ctx context.Context) error {
		var inner error
		n, inner = g.inner.PurgeOlderThan(ctx, dealership, days)
		return inner
	})
	return n, err
}
