package cao

import (
	"time"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

// ObservationBatch is one dealership scrape run as it arrives off the wire.
type ObservationBatch struct {
	RunID        string                      `json:"run_id"`
	Dealership   string                      `json:"dealership"`
	Observations []domain.VehicleObservation `json:"observations"`
	ScrapedAt    time.Time                   `json:"scraped_at"`
}

// OrderRequest is published downstream for every vehicle the engine decides
// to process. OrderDate is the day the decision was made; it is also the day
// recorded in the scan ledger, so replaying an order never changes history.
type OrderRequest struct {
	RunID       string                    `json:"run_id"`
	VIN         string                    `json:"vin"`
	Dealership  string                    `json:"dealership"`
	VehicleType domain.VehicleType        `json:"vehicle_type"`
	Reason      string                    `json:"reason"`
	Observation domain.VehicleObservation `json:"observation"`
	OrderDate   time.Time                 `json:"order_date"`
}

// RunSummary is the per-batch outcome roll-up.
type RunSummary struct {
	RunID           string `json:"run_id"`
	Dealership      string `json:"dealership"`
	Received        int    `json:"received"`
	Deduped         int    `json:"deduped"`
	Processed       int    `json:"processed"`
	Skipped         int    `json:"skipped"`
	Invalid         int    `json:"invalid"`
	Errors          int    `json:"errors"`
	OrdersPublished int    `json:"orders_published"`
}
