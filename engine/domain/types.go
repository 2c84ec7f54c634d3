// Package domain defines the core data model for the lot pipeline: vehicle
// observations coming off dealer feeds, the normalized vehicle-type taxonomy,
// VIN scan history records, and per-VIN decisions. It acts as the validation
// gate at pipeline entry points.
package domain

import "time"

// VehicleObservation is one vehicle as seen on a dealer feed today.
// Descriptive fields (year, make, model, price, URL) are carried through to
// the order pipeline untouched; only VIN, dealership, and condition are
// examined for decisioning.
type VehicleObservation struct {
	VIN          string    `json:"vin"`
	Dealership   string    `json:"dealership"`
	RawCondition string    `json:"raw_condition"`
	Year         int       `json:"year,omitempty"`
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Price        float64   `json:"price,omitempty"`
	URL          string    `json:"url,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at,omitempty"`
}

// VinHistoryRecord is one prior scan of a VIN at a dealership. The history
// ledger is append-only: one record per (vin, dealership, order date).
type VinHistoryRecord struct {
	VIN         string      `json:"vin"`
	Dealership  string      `json:"dealership"` // canonical
	VehicleType VehicleType `json:"vehicle_type"`
	OrderDate   time.Time   `json:"order_date"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Outcome is the verdict for one VIN in one run.
type Outcome string

const (
	ProcessVehicle Outcome = "process"
	SkipVehicle    Outcome = "skip"
)

// Decision pairs an outcome with its audit reason. The reason feeds run logs
// only; nothing downstream branches on it.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// WriteOutcome reports what a history upsert did.
type WriteOutcome string

const (
	WriteInserted         WriteOutcome = "inserted"
	WriteUpdated          WriteOutcome = "updated"
	WriteSkippedDuplicate WriteOutcome = "skipped_duplicate"
)
