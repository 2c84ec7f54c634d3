// Package decision implements the per-VIN process/skip engine: an ordered
// rule table over a VIN's most recent scan history, evaluated most recent
// record first, first rule wins, defaulting to process.
package decision

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/pkg/fn"
)

// HistoryLookup is the read side of the VIN history store. Results come back
// ordered by order date descending.
type HistoryLookup interface {
	LookupRecent(ctx context.Context, vin string, limit int) ([]domain.VinHistoryRecord, error)
}

// Config carries the decision thresholds. The defaults are current business
// policy, not law; every window is injectable.
type Config struct {
	SameDealerCooldownDays int // skip window regardless of type
	SameTypeWindowDays     int // skip window for an unchanged type
	HistoryWindow          int // history records consulted per VIN
	Workers                int // bounded parallelism for per-VIN decisions
}

// DefaultConfig matches the production thresholds.
func DefaultConfig() Config {
	return Config{
		SameDealerCooldownDays: 1,
		SameTypeWindowDays:     7,
		HistoryWindow:          5,
		Workers:                8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SameDealerCooldownDays <= 0 {
		c.SameDealerCooldownDays = d.SameDealerCooldownDays
	}
	if c.SameTypeWindowDays <= 0 {
		c.SameTypeWindowDays = d.SameTypeWindowDays
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Engine decides, for each observed vehicle, whether it is a new processing
// opportunity given its scan history across all dealerships.
type Engine struct {
	cfg     Config
	aliases *domain.AliasMap
	history HistoryLookup
	rules   []rule
	log     *slog.Logger
	now     func() time.Time // for testing
}

// New creates an Engine. A nil alias map resolves every name to itself.
func New(cfg Config, aliases *domain.AliasMap, history HistoryLookup, log *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		aliases: aliases,
		history: history,
		rules:   historyRules(cfg),
		log:     log,
		now:     time.Now,
	}
}

// VinDecision is the engine output for one observation.
type VinDecision struct {
	VIN         string                    `json:"vin"`
	CurrentType domain.VehicleType        `json:"current_type"`
	Decision    domain.Decision           `json:"decision"`
	Observation domain.VehicleObservation `json:"observation"`
}

// BatchResult collects decisions and per-VIN failures for one dealership run.
type BatchResult struct {
	Dealership string // canonical
	Decisions  []VinDecision
	Errors     []*domain.HistoryError
	Invalid    int // observations dropped before decisioning
}

// Summary is the per-run roll-up used for logging and metrics.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Invalid   int `json:"invalid"`
	Errors    int `json:"errors"`
}

// Summary tallies the batch result.
func (r BatchResult) Summary() Summary {
	s := Summary{Invalid: r.Invalid, Errors: len(r.Errors)}
	for _, d := range r.Decisions {
		if d.Decision.Outcome == domain.ProcessVehicle {
			s.Processed++
		} else {
			s.Skipped++
		}
	}
	return s
}

// Decide classifies every observation in a dealership batch. Observations
// without a usable VIN are dropped with a warning. Per-VIN history failures
// are collected in the result, never converted into a verdict: process and
// skip are both business-significant, so an infrastructure failure must stay
// an error. Decisions are independent per VIN and run in parallel.
func (e *Engine) Decide(ctx context.Context, dealership string, observations []domain.VehicleObservation) BatchResult {
	canonical := e.aliases.Resolve(dealership)
	out := BatchResult{Dealership: canonical}

	var valid []domain.VehicleObservation
	for _, o := range observations {
		if err := domain.ValidateObservation(o); err != nil {
			e.log.Warn("dropping observation", "dealership", canonical, "error", err)
			out.Invalid++
			continue
		}
		valid = append(valid, o)
	}

	results := fn.ParMapResult(valid, e.cfg.Workers, func(o domain.VehicleObservation) fn.Result[VinDecision] {
		return fn.FromPair(e.decideOne(ctx, dealership, o))
	})
	for _, r := range results {
		d, err := r.Unwrap()
		if err != nil {
			var he *domain.HistoryError
			if !errors.As(err, &he) {
				he = &domain.HistoryError{Cause: err}
			}
			out.Errors = append(out.Errors, he)
			continue
		}
		e.log.Info("decision",
			"vin", d.VIN,
			"dealership", canonical,
			"outcome", d.Decision.Outcome,
			"reason", d.Decision.Reason,
		)
		out.Decisions = append(out.Decisions, d)
	}
	return out
}

// decideOne runs the rule table for a single observation.
func (e *Engine) decideOne(ctx context.Context, dealership string, o domain.VehicleObservation) (VinDecision, error) {
	d := VinDecision{
		VIN:         o.VIN,
		CurrentType: domain.NormalizeType(o.RawCondition),
		Observation: o,
	}

	records, err := e.history.LookupRecent(ctx, o.VIN, e.cfg.HistoryWindow)
	if err != nil {
		return VinDecision{}, &domain.HistoryError{VIN: o.VIN, Cause: err}
	}

	if len(records) == 0 {
		d.Decision = domain.Decision{Outcome: domain.ProcessVehicle, Reason: "no previous history"}
		return d, nil
	}

	now := e.now()
	for _, rec := range records {
		in := ruleInput{
			record:      rec,
			currentType: d.CurrentType,
			dealership:  dealership,
			sameDealer:  e.aliases.SameDealership(rec.Dealership, dealership),
			daysAgo:     daysSince(now, rec.OrderDate),
		}
		for _, rl := range e.rules {
			if dec, ok := rl.fire(in); ok {
				d.Decision = dec
				return d, nil
			}
		}
	}

	d.Decision = domain.Decision{Outcome: domain.ProcessVehicle, Reason: "no disqualifying history found"}
	return d, nil
}

// daysSince counts full days between t and now, clamped at zero.
func daysSince(now, t time.Time) int {
	d := int(now.Sub(t).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
