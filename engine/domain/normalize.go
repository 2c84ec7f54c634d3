package domain

import "strings"

// VehicleType is the normalized condition taxonomy used throughout the
// pipeline.
type VehicleType string

const (
	TypeNew       VehicleType = "new"
	TypeUsed      VehicleType = "used"
	TypeCertified VehicleType = "certified"
	TypeUnknown   VehicleType = "unknown"
)

// typeBuckets are checked in order; the first bucket with a matching
// substring wins. A condition string matching several buckets resolves by
// priority, not by most-specific match. "pre-owned" (hyphen) lands in
// certified while "pre owned" lands in used; that matches the reference
// system and is kept bit-for-bit.
var typeBuckets = []struct {
	vtype    VehicleType
	keywords []string
}{
	{TypeNew, []string{"brand new", "new"}},
	{TypeCertified, []string{"certified", "cpo", "pre-owned"}},
	{TypeUsed, []string{"used", "pre owned"}},
}

// NormalizeType maps a raw feed condition string to a VehicleType. Pure and
// total: empty or unrecognized input yields TypeUnknown.
func NormalizeType(raw string) VehicleType {
	cond := strings.ToLower(strings.TrimSpace(raw))
	if cond == "" {
		return TypeUnknown
	}
	for _, bucket := range typeBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(cond, kw) {
				return bucket.vtype
			}
		}
	}
	return TypeUnknown
}
