package decision

import (
	"fmt"

	"github.com/silverfoxmkt/lotflow/engine/domain"
)

// ruleInput is everything a rule may examine for one history record.
type ruleInput struct {
	record      domain.VinHistoryRecord
	currentType domain.VehicleType
	dealership  string // as observed today
	sameDealer  bool   // record dealership matches current, raw or canonical
	daysAgo     int    // full days since the record's order date
}

// rule is one row of the decision table. fire returns the decision and true
// when the rule applies to this record.
type rule struct {
	name string
	fire func(ruleInput) (domain.Decision, bool)
}

// historyRules is the ordered decision table evaluated per history record,
// most recent record first, first firing rule wins. When no rule fires for
// any record the engine processes: the system is deliberately biased toward
// re-processing so graphics opportunities are not missed.
func historyRules(cfg Config) []rule {
	return []rule{
		{
			name: "too-recent-same-dealership",
			fire: func(in ruleInput) (domain.Decision, bool) {
				if in.sameDealer && in.daysAgo <= cfg.SameDealerCooldownDays {
					return domain.Decision{
						Outcome: domain.SkipVehicle,
						Reason:  fmt.Sprintf("same dealership processed %d days ago", in.daysAgo),
					}, true
				}
				return domain.Decision{}, false
			},
		},
		{
			name: "recent-same-dealership-same-type",
			fire: func(in ruleInput) (domain.Decision, bool) {
				if in.sameDealer && in.record.VehicleType == in.currentType && in.daysAgo <= cfg.SameTypeWindowDays {
					return domain.Decision{
						Outcome: domain.SkipVehicle,
						Reason:  fmt.Sprintf("same dealership+type processed %d days ago", in.daysAgo),
					}, true
				}
				return domain.Decision{}, false
			},
		},
		{
			name: "cross-dealership",
			fire: func(in ruleInput) (domain.Decision, bool) {
				if !in.sameDealer {
					return domain.Decision{
						Outcome: domain.ProcessVehicle,
						Reason:  fmt.Sprintf("cross-dealership opportunity (%s -> %s)", in.record.Dealership, in.dealership),
					}, true
				}
				return domain.Decision{}, false
			},
		},
		{
			name: "type-change-same-dealership",
			fire: func(in ruleInput) (domain.Decision, bool) {
				if in.sameDealer && in.record.VehicleType != in.currentType {
					return domain.Decision{
						Outcome: domain.ProcessVehicle,
						Reason:  fmt.Sprintf("status change (%s -> %s)", in.record.VehicleType, in.currentType),
					}, true
				}
				return domain.Decision{}, false
			},
		},
	}
}
