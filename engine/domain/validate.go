package domain

import (
	"regexp"
	"strings"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// ValidateObservation checks the fields the decision engine depends on.
// Scraped data commonly lacks a VIN, so a missing VIN is ErrMissingVIN and
// batch callers skip the row with a warning rather than aborting; a present
// but malformed VIN is ErrInvalidVIN and handled the same way.
func ValidateObservation(o VehicleObservation) error {
	vin := strings.TrimSpace(o.VIN)
	if vin == "" {
		return NewValidationError("vin", o.VIN, ErrMissingVIN)
	}
	if !vinRegex.MatchString(strings.ToUpper(vin)) {
		return NewValidationError("vin", o.VIN, ErrInvalidVIN)
	}
	return nil
}
