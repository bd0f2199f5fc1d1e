// Package discount models a tenant's ordered set of toggleable discount rules.
//
// A Rule is a tagged union keyed by Kind: the common fields (enabled flag and
// percentage) live on Rule, the kind-specific eligibility parameters live in a
// Criteria variant. Kinds this build does not know are kept as UnknownCriteria
// so that older binaries can still price catalogs written by newer ones.
package discount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a discount rule shape
type Kind string

const (
	// KindLoyalty rewards customers with enough prior services
	KindLoyalty Kind = "loyalty"
	// KindSeasonal applies during configured calendar months
	KindSeasonal Kind = "seasonal"
	// KindBundle applies when a booking has enough services
	KindBundle Kind = "bundle"
)

// DeclarationOrder is the order in which default rule sets declare their kinds.
var DeclarationOrder = []Kind{KindLoyalty, KindSeasonal, KindBundle}

// Known reports whether this build has a predicate for k
func (k Kind) Known() bool {
	switch k {
	case KindLoyalty, KindSeasonal, KindBundle:
		return true
	default:
		return false
	}
}

// BookingContext carries the facts eligibility predicates read.
type BookingContext struct {
	// PriorServiceCount is the customer's number of completed services
	PriorServiceCount int `json:"priorServiceCount"`

	// Now is the booking instant; a zero value means "unknown"
	Now time.Time `json:"now"`

	// ServicesInBooking is the number of services in the current booking
	ServicesInBooking int `json:"servicesInBooking"`
}

// Criteria is the kind-specific eligibility part of a rule
type Criteria interface {
	Kind() Kind
	Eligible(ctx BookingContext) bool
}

// LoyaltyCriteria: priorServiceCount >= MinPriorServices
type LoyaltyCriteria struct {
	MinPriorServices int `json:"threshold"`
}

// Kind implements Criteria
func (LoyaltyCriteria) Kind() Kind { return KindLoyalty }

// Eligible implements Criteria
func (c LoyaltyCriteria) Eligible(ctx BookingContext) bool {
	return ctx.PriorServiceCount >= c.MinPriorServices
}

// SeasonalCriteria: month of ctx.Now is one of Months
type SeasonalCriteria struct {
	Months []time.Month `json:"months"`
}

// Kind implements Criteria
func (SeasonalCriteria) Kind() Kind { return KindSeasonal }

// Eligible implements Criteria
func (c SeasonalCriteria) Eligible(ctx BookingContext) bool {
	if ctx.Now.IsZero() {
		return false
	}
	month := ctx.Now.Month()
	for _, m := range c.Months {
		if m == month {
			return true
		}
	}
	return false
}

// BundleCriteria: servicesInBooking >= MinServices
type BundleCriteria struct {
	MinServices int `json:"threshold"`
}

// Kind implements Criteria
func (BundleCriteria) Kind() Kind { return KindBundle }

// Eligible implements Criteria
func (c BundleCriteria) Eligible(ctx BookingContext) bool {
	return ctx.ServicesInBooking >= c.MinServices
}

// UnknownCriteria preserves a rule of a kind this build cannot evaluate.
type UnknownCriteria struct {
	RawKind Kind
	Params  json.RawMessage
}

// Kind implements Criteria
func (c UnknownCriteria) Kind() Kind { return c.RawKind }

// Eligible is always false for kinds without a predicate
func (UnknownCriteria) Eligible(BookingContext) bool { return false }

// Rule is one named, toggleable discount
type Rule struct {
	Kind       Kind
	Enabled    bool
	Percentage decimal.Decimal
	Criteria   Criteria
}

// Loyalty builds a loyalty rule
func Loyalty(enabled bool, pct decimal.Decimal, minPriorServices int) Rule {
	return Rule{Kind: KindLoyalty, Enabled: enabled, Percentage: pct, Criteria: LoyaltyCriteria{MinPriorServices: minPriorServices}}
}

// Seasonal builds a seasonal rule
func Seasonal(enabled bool, pct decimal.Decimal, months ...time.Month) Rule {
	return Rule{Kind: KindSeasonal, Enabled: enabled, Percentage: pct, Criteria: SeasonalCriteria{Months: months}}
}

// Bundle builds a bundle rule
func Bundle(enabled bool, pct decimal.Decimal, minServices int) Rule {
	return Rule{Kind: KindBundle, Enabled: enabled, Percentage: pct, Criteria: BundleCriteria{MinServices: minServices}}
}

// Eligible evaluates the rule's predicate against ctx. It does not look at
// Enabled; see Applies. Rules without criteria and unknown kinds are never
// eligible, and this function never panics on unexpected shapes.
func Eligible(r Rule, ctx BookingContext) bool {
	if r.Criteria == nil || r.Criteria.Kind() != r.Kind {
		return false
	}
	return r.Criteria.Eligible(ctx)
}

// Applies reports whether the rule is enabled and eligible
func Applies(r Rule, ctx BookingContext) bool {
	return r.Enabled && Eligible(r, ctx)
}

// Validate checks the parameters a tenant administrator may set
func (r Rule) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("discount kind is required")
	}
	if r.Percentage.IsNegative() || r.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s: discount percentage must be between 0 and 100, got %s", r.Kind, r.Percentage)
	}
	if r.Criteria != nil && r.Criteria.Kind() != r.Kind {
		return fmt.Errorf("%s: criteria of kind %s does not match", r.Kind, r.Criteria.Kind())
	}
	switch c := r.Criteria.(type) {
	case LoyaltyCriteria:
		if c.MinPriorServices < 0 {
			return fmt.Errorf("loyalty: threshold must be non-negative")
		}
	case SeasonalCriteria:
		for _, m := range c.Months {
			if m < time.January || m > time.December {
				return fmt.Errorf("seasonal: month %d out of range 1-12", m)
			}
		}
	case BundleCriteria:
		if c.MinServices < 0 {
			return fmt.Errorf("bundle: threshold must be non-negative")
		}
	case nil:
		if r.Kind.Known() {
			return fmt.Errorf("%s: eligibility parameters are required", r.Kind)
		}
	}
	return nil
}

type ruleJSON struct {
	Kind       Kind            `json:"kind"`
	Enabled    bool            `json:"enabled"`
	Percentage decimal.Decimal `json:"discountPercentage"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON writes the kind-tagged form
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{Kind: r.Kind, Enabled: r.Enabled, Percentage: r.Percentage}
	switch c := r.Criteria.(type) {
	case nil:
	case UnknownCriteria:
		out.Params = c.Params
	default:
		params, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		out.Params = params
	}
	return json.Marshal(out)
}

// UnmarshalJSON dispatches on kind; unknown kinds keep their raw params
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Kind = in.Kind
	r.Enabled = in.Enabled
	r.Percentage = in.Percentage
	r.Criteria = nil

	params := in.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	switch in.Kind {
	case KindLoyalty:
		var c LoyaltyCriteria
		if err := json.Unmarshal(params, &c); err != nil {
			return fmt.Errorf("loyalty params: %w", err)
		}
		r.Criteria = c
	case KindSeasonal:
		var c SeasonalCriteria
		if err := json.Unmarshal(params, &c); err != nil {
			return fmt.Errorf("seasonal params: %w", err)
		}
		r.Criteria = c
	case KindBundle:
		var c BundleCriteria
		if err := json.Unmarshal(params, &c); err != nil {
			return fmt.Errorf("bundle params: %w", err)
		}
		r.Criteria = c
	default:
		r.Criteria = UnknownCriteria{RawKind: in.Kind, Params: append(json.RawMessage(nil), in.Params...)}
	}
	return nil
}

// Canonical returns the rule's JSON form, used as the audit value of a rule
func (r Rule) Canonical() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%s(unencodable: %v)", r.Kind, err)
	}
	return string(data)
}

// Equal compares two rules by their canonical encoding
func (r Rule) Equal(other Rule) bool {
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}
