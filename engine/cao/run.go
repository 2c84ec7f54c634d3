// Package cao runs the create-an-order pipeline: dealership observation
// batches come in over NATS, the decision engine classifies each VIN against
// its scan history, and every processable vehicle is recorded in the ledger
// and published as an order request.
package cao

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/silverfoxmkt/lotflow/engine/decision"
	"github.com/silverfoxmkt/lotflow/engine/domain"
	"github.com/silverfoxmkt/lotflow/pkg/fn"
	"github.com/silverfoxmkt/lotflow/pkg/natsutil"
)

const (
	// ObservationsSubject carries scraped dealership batches.
	ObservationsSubject = "lotflow.observations"
	// OrdersSubject carries order requests for processable vehicles.
	OrdersSubject = "lotflow.orders"
	// DLQSubject is the dead letter queue for batches that keep failing.
	DLQSubject = "lotflow.observations.dlq"
	// MaxRetries before a batch goes to the DLQ.
	MaxRetries = 3
)

// HistoryWriter is the write side of the scan ledger.
type HistoryWriter interface {
	RecordProcessed(ctx context.Context, dealership, vin string, vtype domain.VehicleType, orderDate time.Time) (domain.WriteOutcome, error)
}

// OrderPublisher sends order requests downstream.
type OrderPublisher interface {
	PublishOrder(ctx context.Context, req OrderRequest) error
}

// NATSOrders publishes order requests to the orders subject with trace
// context in the headers.
type NATSOrders struct {
	Conn *nats.Conn
}

func (p *NATSOrders) PublishOrder(ctx context.Context, req OrderRequest) error {
	return natsutil.Publish(ctx, p.Conn, OrdersSubject, req)
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Engine  *decision.Engine
	History HistoryWriter
	Orders  OrderPublisher
	Logger  *slog.Logger
	// OnSummary, when set, receives the summary of every completed run.
	OnSummary func(RunSummary)
}

// Runner executes the pipeline for one batch at a time.
type Runner struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time // for testing
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{deps: deps, log: log, now: time.Now}
}

// decided pairs a batch with its decision result between stages.
type decided struct {
	batch   ObservationBatch
	result  decision.BatchResult
	ordered int
	errors  int
}

// Run takes a batch through dedupe, decisioning, and order fulfillment.
// Ledger and publish failures for one VIN never abort the rest of the batch;
// they are counted and the summary reports them.
func (r *Runner) Run(ctx context.Context, batch ObservationBatch) (RunSummary, error) {
	if batch.RunID == "" {
		batch.RunID = uuid.NewString()
	}
	received := len(batch.Observations)

	dedupe := fn.TracedStage("cao.dedupe", fn.MapStage(func(b ObservationBatch) ObservationBatch {
		b.Observations = fn.UniqueBy(b.Observations, func(o domain.VehicleObservation) string { return o.VIN })
		return b
	}))
	decide := fn.TracedStage("cao.decide", func(ctx context.Context, b ObservationBatch) fn.Result[decided] {
		return fn.Ok(decided{batch: b, result: r.deps.Engine.Decide(ctx, b.Dealership, b.Observations)})
	})
	fulfill := fn.TracedStage("cao.fulfill", func(ctx context.Context, d decided) fn.Result[decided] {
		d.ordered, d.errors = r.fulfill(ctx, d.batch, d.result)
		return fn.Ok(d)
	})

	pipeline := fn.Then(fn.Then(dedupe, decide), fulfill)
	res := pipeline(ctx, batch)
	d, err := res.Unwrap()
	if err != nil {
		return RunSummary{RunID: batch.RunID, Dealership: batch.Dealership}, err
	}

	s := d.result.Summary()
	summary := RunSummary{
		RunID:           batch.RunID,
		Dealership:      d.result.Dealership,
		Received:        received,
		Deduped:         received - len(d.batch.Observations),
		Processed:       s.Processed,
		Skipped:         s.Skipped,
		Invalid:         s.Invalid,
		Errors:          s.Errors + d.errors,
		OrdersPublished: d.ordered,
	}
	r.log.Info("run complete",
		"run_id", summary.RunID,
		"dealership", summary.Dealership,
		"received", summary.Received,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"orders", summary.OrdersPublished,
		"errors", summary.Errors,
	)
	if r.deps.OnSummary != nil {
		r.deps.OnSummary(summary)
	}
	return summary, nil
}

// fulfill records and publishes every process decision. Returns the number
// of orders published and the number of per-VIN failures.
func (r *Runner) fulfill(ctx context.Context, batch ObservationBatch, result decision.BatchResult) (ordered, failed int) {
	orderDate := r.now()
	for _, d := range result.Decisions {
		if d.Decision.Outcome != domain.ProcessVehicle {
			continue
		}
		if _, err := r.deps.History.RecordProcessed(ctx, result.Dealership, d.VIN, d.CurrentType, orderDate); err != nil {
			r.log.Error("ledger write failed", "vin", d.VIN, "error", err)
			failed++
			continue
		}
		req := OrderRequest{
			RunID:       batch.RunID,
			VIN:         d.VIN,
			Dealership:  result.Dealership,
			VehicleType: d.CurrentType,
			Reason:      d.Decision.Reason,
			Observation: d.Observation,
			OrderDate:   orderDate,
		}
		if err := r.deps.Orders.PublishOrder(ctx, req); err != nil {
			r.log.Error("order publish failed", "vin", d.VIN, "error", err)
			failed++
			continue
		}
		ordered++
	}
	return ordered, failed
}

// dlqMessage is published to the DLQ after repeated failures.
type dlqMessage struct {
	Batch   ObservationBatch `json:"batch"`
	Error   string           `json:"error"`
	Retries int              `json:"retries"`
}

// StartConsumer subscribes the runner to the observations subject with
// retry and DLQ handling.
func StartConsumer(nc *nats.Conn, runner *Runner) (*nats.Subscription, error) {
	log := runner.log

	return nc.Subscribe(ObservationsSubject, func(msg *nats.Msg) {
		var batch ObservationBatch
		if err := json.Unmarshal(msg.Data, &batch); err != nil {
			log.Error("observation batch unmarshal failed", "error", err)
			return
		}

		ctx := natsutil.Extract(msg)

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		if _, err := runner.Run(ctx, batch); err != nil {
			retries++
			log.Error("run failed",
				"run_id", batch.RunID,
				"dealership", batch.Dealership,
				"error", err,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := dlqMessage{Batch: batch, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(ObservationsSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("retry publish failed", "error", err)
				}
			}
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
