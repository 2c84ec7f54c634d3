package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

// MemoryStore is an in-memory scan ledger with the same surface as Store.
// Used in tests and for local runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	aliases *domain.AliasMap
	scans   map[string][]domain.VinHistoryRecord // vin -> scans, newest first
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(aliases *domain.AliasMap) *MemoryStore {
	return &MemoryStore{
		aliases: aliases,
		scans:   make(map[string][]domain.VinHistoryRecord),
		now:     time.Now,
	}
}

// LookupRecent returns up to limit scans for a VIN, most recent first.
func (m *MemoryStore) LookupRecent(_ context.Context, vin string, limit int) ([]domain.VinHistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.scans[vin]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]domain.VinHistoryRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// RecordProcessed upserts a scan keyed on (vin, dealership, order date).
func (m *MemoryStore) RecordProcessed(_ context.Context, dealership, vin string, vtype domain.VehicleType, orderDate time.Time) (domain.WriteOutcome, error) {
	canonical := m.aliases.Resolve(dealership)
	day := orderDate.Format(dayFormat)
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, rec := range m.scans[vin] {
		if rec.Dealership == canonical && rec.OrderDate.Format(dayFormat) == day {
			if rec.VehicleType == vtype {
				return domain.WriteSkippedDuplicate, nil
			}
			rec.VehicleType = vtype
			rec.UpdatedAt = now
			m.scans[vin][i] = rec
			return domain.WriteUpdated, nil
		}
	}

	day0, _ := time.Parse(dayFormat, day)
	m.scans[vin] = append(m.scans[vin], domain.VinHistoryRecord{
		VIN:         vin,
		Dealership:  canonical,
		VehicleType: vtype,
		OrderDate:   day0,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	sort.Slice(m.scans[vin], func(i, j int) bool {
		return m.scans[vin][i].OrderDate.After(m.scans[vin][j].OrderDate)
	})
	return domain.WriteInserted, nil
}

// PurgeOlderThan removes a dealership's scans older than the retention
// window and returns the number removed.
func (m *MemoryStore) PurgeOlderThan(_ context.Context, dealership string, days int) (int64, error) {
	canonical := m.aliases.Resolve(dealership)
	cutoff := m.now().AddDate(0, 0, -days)

	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for vin, recs := range m.scans {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Dealership == canonical && rec.OrderDate.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(m.scans, vin)
		} else {
			m.scans[vin] = kept
		}
	}
	return purged, nil
}
