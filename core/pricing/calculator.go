// Package pricing converts a rate catalog into a customer-facing price.
//
// ComputePrice is a pure function: no I/O, no clock, no shared state. The
// same catalog, selection, urgency and booking context always produce the
// same PriceBreakdown, which is what makes stored audit steps reproducible.
package pricing

import (
	"github.com/shopspring/decimal"

	"shop-pricing/core/catalog"
	"shop-pricing/core/determinism"
	"shop-pricing/core/discount"
	"shop-pricing/internal/errors"
)

// ServiceSelection is one requested service line
type ServiceSelection struct {
	ServiceKey string `json:"serviceKey"`
	Quantity   int    `json:"quantity"`

	// LaborHours are billed at the catalog labor rate
	LaborHours decimal.Decimal `json:"laborHours,omitempty"`

	// PartsCost is the parts cost before markup
	PartsCost decimal.Decimal `json:"partsCost,omitempty"`
}

// LineItem is the priced contribution of one selection
type LineItem struct {
	ServiceKey string            `json:"serviceKey"`
	Quantity   int               `json:"quantity"`
	UnitRate   determinism.Money `json:"unitRate"`
	Service    determinism.Money `json:"service"`
	LaborHours decimal.Decimal   `json:"laborHours"`
	Labor      determinism.Money `json:"labor"`
	PartsCost  decimal.Decimal   `json:"partsCost"`
	Parts      determinism.Money `json:"parts"`
	Total      determinism.Money `json:"total"`
}

// AppliedDiscount is a rule that actually fired
type AppliedDiscount struct {
	Kind          discount.Kind     `json:"kind"`
	Percentage    decimal.Decimal   `json:"percentage"`
	AmountRemoved determinism.Money `json:"amountRemoved"`
	RunningAfter  determinism.Money `json:"runningAfter"`

	// Clamped is set when the percentage would have taken the price below
	// zero and AmountRemoved was capped at the running total.
	Clamped bool `json:"clamped,omitempty"`
}

// RuleEvaluation records how every declared rule was treated
type RuleEvaluation struct {
	Kind       discount.Kind   `json:"kind"`
	Enabled    bool            `json:"enabled"`
	Percentage decimal.Decimal `json:"percentage"`
	Eligible   bool            `json:"eligible"`
	Applied    bool            `json:"applied"`
}

// PriceBreakdown is the result of one pricing request. It is never stored
// directly; it is rendered into audit steps or returned to the caller.
type PriceBreakdown struct {
	TenantID          string                  `json:"tenantId"`
	CatalogVersionID  string                  `json:"catalogVersionId,omitempty"`
	Currency          string                  `json:"currency"`
	Lines             []LineItem              `json:"lines"`
	BasePrice         determinism.Money       `json:"basePrice"`
	SelectedUrgency   catalog.UrgencyTier     `json:"selectedUrgency"`
	UrgencyMultiplier decimal.Decimal         `json:"urgencyMultiplier"`
	AfterUrgency      determinism.Money       `json:"afterUrgency"`
	Evaluations       []RuleEvaluation        `json:"evaluations"`
	AppliedDiscounts  []AppliedDiscount       `json:"appliedDiscounts"`
	AfterDiscounts    determinism.Money       `json:"afterDiscounts"`
	FinalPrice        determinism.Money       `json:"finalPrice"`
	BookingContext    discount.BookingContext `json:"bookingContext"`
}

// Request bundles the calculator inputs for callers that pass them around
type Request struct {
	Selection []ServiceSelection      `json:"selection"`
	Urgency   catalog.UrgencyTier     `json:"urgency"`
	Booking   discount.BookingContext `json:"booking"`
}

// ComputePrice runs the adjustment chain:
//
//	base -> x urgency multiplier -> each enabled, eligible discount in
//	declaration order against the running total -> round once.
//
// Discounts compound: a later rule acts on the already-discounted price.
func ComputePrice(cat *catalog.RateCatalog, selection []ServiceSelection, urgency catalog.UrgencyTier, booking discount.BookingContext) (*PriceBreakdown, error) {
	if cat == nil {
		return nil, errors.Validation("rate catalog is required")
	}
	if len(selection) == 0 {
		return nil, errors.Validation("selection must contain at least one service")
	}
	multiplier, ok := cat.Multiplier(urgency)
	if !ok {
		return nil, errors.Validationf("unknown urgency tier %q", urgency).WithContext("urgency", string(urgency))
	}

	currency := cat.CurrencyOrDefault()
	base := determinism.Zero(currency)
	lines := make([]LineItem, 0, len(selection))

	for i, sel := range selection {
		line, err := priceLine(cat, currency, sel)
		if err != nil {
			return nil, err.WithContext("line", i)
		}
		lines = append(lines, line)
		base = base.Add(line.Total)
	}

	if booking.ServicesInBooking == 0 {
		booking.ServicesInBooking = len(selection)
	}

	afterUrgency := base.Mul(multiplier)

	running := afterUrgency
	evaluations := make([]RuleEvaluation, 0, len(cat.Discounts))
	applied := make([]AppliedDiscount, 0, len(cat.Discounts))

	for _, rule := range cat.Discounts {
		if rule.Percentage.IsNegative() {
			return nil, errors.Validationf("discount %s has a negative percentage", rule.Kind)
		}
		eval := RuleEvaluation{
			Kind:       rule.Kind,
			Enabled:    rule.Enabled,
			Percentage: rule.Percentage,
			Eligible:   discount.Eligible(rule, booking),
		}
		if eval.Enabled && eval.Eligible {
			removed := running.Percent(rule.Percentage)
			clamped := false
			if removed.Cmp(running) > 0 {
				removed = running
				clamped = true
			}
			running = running.Sub(removed)
			eval.Applied = true
			applied = append(applied, AppliedDiscount{
				Kind:          rule.Kind,
				Percentage:    rule.Percentage,
				AmountRemoved: removed,
				RunningAfter:  running,
				Clamped:       clamped,
			})
		}
		evaluations = append(evaluations, eval)
	}

	return &PriceBreakdown{
		TenantID:          cat.TenantID,
		CatalogVersionID:  cat.ID,
		Currency:          currency,
		Lines:             lines,
		BasePrice:         base,
		SelectedUrgency:   urgency,
		UrgencyMultiplier: multiplier,
		AfterUrgency:      afterUrgency,
		Evaluations:       evaluations,
		AppliedDiscounts:  applied,
		AfterDiscounts:    running,
		FinalPrice:        running.Round(),
		BookingContext:    booking,
	}, nil
}

// Compute is ComputePrice over a Request
func Compute(cat *catalog.RateCatalog, req Request) (*PriceBreakdown, error) {
	return ComputePrice(cat, req.Selection, req.Urgency, req.Booking)
}

func priceLine(cat *catalog.RateCatalog, currency string, sel ServiceSelection) (LineItem, *errors.Error) {
	rate, ok := cat.Rate(sel.ServiceKey)
	if !ok {
		return LineItem{}, errors.Validationf("unknown service %q", sel.ServiceKey).WithContext("service", sel.ServiceKey)
	}
	if sel.Quantity <= 0 {
		return LineItem{}, errors.Validationf("service %q: quantity must be positive, got %d", sel.ServiceKey, sel.Quantity)
	}
	if sel.LaborHours.IsNegative() {
		return LineItem{}, errors.Validationf("service %q: labor hours must be non-negative", sel.ServiceKey)
	}
	if sel.PartsCost.IsNegative() {
		return LineItem{}, errors.Validationf("service %q: parts cost must be non-negative", sel.ServiceKey)
	}

	unit := determinism.NewMoneyFromDecimal(rate, currency)
	service := unit.Mul(decimal.NewFromInt(int64(sel.Quantity)))
	labor := determinism.NewMoneyFromDecimal(cat.LaborRate, currency).Mul(sel.LaborHours)
	parts := determinism.NewMoneyFromDecimal(sel.PartsCost, currency).Mul(cat.PartsMarkup)

	return LineItem{
		ServiceKey: sel.ServiceKey,
		Quantity:   sel.Quantity,
		UnitRate:   unit,
		Service:    service,
		LaborHours: sel.LaborHours,
		Labor:      labor,
		PartsCost:  sel.PartsCost,
		Parts:      parts,
		Total:      service.Add(labor).Add(parts),
	}, nil
}
