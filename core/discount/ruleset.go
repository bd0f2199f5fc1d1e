package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Set is an ordered rule set. Slice order is declaration order, which is
// also the order discounts compound in.
type Set []Rule

// DefaultSet is what a newly onboarded tenant starts with: every known kind
// declared, none enabled.
func DefaultSet() Set {
	return Set{
		Loyalty(false, decimal.NewFromInt(10), 3),
		Seasonal(false, decimal.NewFromInt(5)),
		Bundle(false, decimal.NewFromInt(15), 2),
	}
}

// Validate checks each rule and rejects duplicate kinds
func (s Set) Validate() error {
	seen := make(map[Kind]bool, len(s))
	for i, r := range s {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("discount[%d]: %w", i, err)
		}
		if seen[r.Kind] {
			return fmt.Errorf("discount[%d]: duplicate kind %s", i, r.Kind)
		}
		seen[r.Kind] = true
	}
	return nil
}

// Find returns the rule of the given kind
func (s Set) Find(kind Kind) (Rule, bool) {
	for _, r := range s {
		if r.Kind == kind {
			return r, true
		}
	}
	return Rule{}, false
}

// Clone returns a copy that shares no slices with s
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, r := range s {
		if sc, ok := r.Criteria.(SeasonalCriteria); ok {
			sc.Months = append([]time.Month(nil), sc.Months...)
			r.Criteria = sc
		}
		out[i] = r
	}
	return out
}
