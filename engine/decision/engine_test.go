package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

// fakeHistory serves canned records per VIN and can fail per VIN.
type fakeHistory struct {
	mu      sync.Mutex
	records map[string][]domain.VinHistoryRecord
	fail    map[string]error
	limits  []int
}

func (f *fakeHistory) LookupRecent(_ context.Context, vin string, limit int) ([]domain.VinHistoryRecord, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if err := f.fail[vin]; err != nil {
		return nil, err
	}
	recs := f.records[vin]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func testEngine(t *testing.T, hist *fakeHistory) *Engine {
	t.Helper()
	aliases, err := domain.NewAliasMap(map[string][]string{
		"Dave Sinclair Lincoln South": {"Dave Sinclair Lincoln"},
	})
	if err != nil {
		t.Fatal(err)
	}
	e := New(DefaultConfig(), aliases, hist, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return testNow }
	return e
}

func obs(vin, dealer, condition string) domain.VehicleObservation {
	return domain.VehicleObservation{VIN: vin, Dealership: dealer, RawCondition: condition}
}

func rec(dealer string, vtype domain.VehicleType, age time.Duration) domain.VinHistoryRecord {
	return domain.VinHistoryRecord{Dealership: dealer, VehicleType: vtype, OrderDate: testNow.Add(-age)}
}

const (
	vinA = "1HGCM82633A004352"
	vinB = "5YJ3E1EA1NF123456"
	vinC = "WBA3A5C57DF123456"
)

func one(t *testing.T, r BatchResult) VinDecision {
	t.Helper()
	if len(r.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
	if len(r.Decisions) != 1 {
		t.Fatalf("got %d decisions", len(r.Decisions))
	}
	return r.Decisions[0]
}

func TestDecide_NoHistory(t *testing.T) {
	e := testEngine(t, &fakeHistory{})
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")}))
	if d.Decision.Outcome != domain.ProcessVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "no previous history") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

func TestDecide_CrossDealership(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("BMW of West St. Louis", domain.TypeNew, 48*time.Hour)},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Dave Sinclair Lincoln South", []domain.VehicleObservation{
		obs(vinA, "Dave Sinclair Lincoln South", "Used"),
	}))
	if d.Decision.Outcome != domain.ProcessVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "cross-dealership") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
	if d.CurrentType != domain.TypeUsed {
		t.Errorf("current type = %v", d.CurrentType)
	}
}

func TestDecide_TooRecentSameDealership(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("Columbia Honda", domain.TypeNew, 12*time.Hour)},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")}))
	if d.Decision.Outcome != domain.SkipVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "same dealership processed") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

func TestDecide_TypeChange(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("Columbia Honda", domain.TypeUsed, 72*time.Hour)},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{
		obs(vinA, "Columbia Honda", "Certified Pre-Owned"),
	}))
	if d.Decision.Outcome != domain.ProcessVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "status change") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

func TestDecide_SameTypeWithinWindow(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("Columbia Honda", domain.TypeNew, 5*24*time.Hour)},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")}))
	if d.Decision.Outcome != domain.SkipVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "same dealership+type") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

// The most recent record decides before older records are reached: a
// cross-dealership scan yesterday wins over a same-dealership scan last week.
func TestDecide_MostRecentRecordFirst(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {
			rec("BMW of West St. Louis", domain.TypeNew, 24*time.Hour),
			rec("Columbia Honda", domain.TypeNew, 6*24*time.Hour),
		},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")}))
	if d.Decision.Outcome != domain.ProcessVehicle {
		t.Fatalf("outcome = %v (older same-dealer record should not be reached)", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "cross-dealership") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

// Same dealership, same type, outside both windows: no rule fires for the
// record and the default-open policy processes.
func TestDecide_DefaultOpen(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("Columbia Honda", domain.TypeNew, 10*24*time.Hour)},
	}}
	e := testEngine(t, hist)
	d := one(t, e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")}))
	if d.Decision.Outcome != domain.ProcessVehicle {
		t.Fatalf("outcome = %v", d.Decision.Outcome)
	}
	if !strings.Contains(d.Decision.Reason, "no disqualifying history") {
		t.Errorf("reason = %q", d.Decision.Reason)
	}
}

// Alias resolution: a record written under a variant spelling still counts
// as the same dealership.
func TestDecide_AliasMatch(t *testing.T) {
	hist := &fakeHistory{records: map[string][]domain.VinHistoryRecord{
		vinA: {rec("Dave Sinclair Lincoln", domain.TypeNew, 12*time.Hour)},
	}}
	e := testEngine(t, hist)
	r := e.Decide(context.Background(), "Dave Sinclair Lincoln South", []domain.VehicleObservation{
		obs(vinA, "Dave Sinclair Lincoln South", "New"),
	})
	if r.Dealership != "Dave Sinclair Lincoln South" {
		t.Fatalf("canonical dealership = %q", r.Dealership)
	}
	d := one(t, r)
	if d.Decision.Outcome != domain.SkipVehicle {
		t.Fatalf("outcome = %v, alias should match as same dealership", d.Decision.Outcome)
	}
}

func TestDecide_HistoryUnavailable(t *testing.T) {
	hist := &fakeHistory{
		records: map[string][]domain.VinHistoryRecord{},
		fail:    map[string]error{vinB: errors.New("bolt connection refused")},
	}
	e := testEngine(t, hist)
	r := e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{
		obs(vinA, "Columbia Honda", "New"),
		obs(vinB, "Columbia Honda", "New"),
		obs(vinC, "Columbia Honda", "Used"),
	})
	if len(r.Decisions) != 2 {
		t.Fatalf("got %d decisions, want the non-failing VINs", len(r.Decisions))
	}
	if len(r.Errors) != 1 {
		t.Fatalf("got %d errors", len(r.Errors))
	}
	he := r.Errors[0]
	if he.VIN != vinB {
		t.Errorf("error VIN = %q", he.VIN)
	}
	if !errors.Is(he, domain.ErrHistoryUnavailable) {
		t.Errorf("error should wrap ErrHistoryUnavailable: %v", he)
	}
	s := r.Summary()
	if s.Processed != 2 || s.Errors != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestDecide_InvalidObservationsDropped(t *testing.T) {
	e := testEngine(t, &fakeHistory{})
	r := e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{
		{Dealership: "Columbia Honda", RawCondition: "New"}, // no VIN
		obs("BADVIN", "Columbia Honda", "New"),              // malformed
		obs(vinA, "Columbia Honda", "New"),
	})
	if r.Invalid != 2 {
		t.Fatalf("invalid = %d", r.Invalid)
	}
	if len(r.Decisions) != 1 {
		t.Fatalf("decisions = %d", len(r.Decisions))
	}
	s := r.Summary()
	if s.Invalid != 2 || s.Processed != 1 || s.Errors != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestDecide_HistoryWindowPassedThrough(t *testing.T) {
	hist := &fakeHistory{}
	cfg := DefaultConfig()
	cfg.HistoryWindow = 3
	e := New(cfg, nil, hist, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return testNow }
	e.Decide(context.Background(), "Columbia Honda", []domain.VehicleObservation{obs(vinA, "Columbia Honda", "New")})
	if len(hist.limits) != 1 || hist.limits[0] != 3 {
		t.Fatalf("lookup limits = %v", hist.limits)
	}
}
