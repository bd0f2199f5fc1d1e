package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/determinism"
	"shop-pricing/core/discount"
)

// Step payload schema tags. Bump the suffix when a payload shape changes;
// stored runs keep the tag they were written with.
const (
	SchemaBasePricing       = "pricing.base_pricing/v1"
	SchemaUrgencyMultiplier = "pricing.urgency_multiplier/v2"
	SchemaDiscountRules     = "pricing.discount_rules/v1"
	SchemaFinalPrice        = "pricing.final_price/v1"
)

// BasePricingData is the payload of the base_pricing step
type BasePricingData struct {
	Lines     []LineItem        `json:"lines"`
	LaborRate decimal.Decimal   `json:"laborRate"`
	Markup    decimal.Decimal   `json:"partsMarkup"`
	BasePrice determinism.Money `json:"basePrice"`
}

// UrgencyData is the payload of the urgency_multiplier step
type UrgencyData struct {
	Multipliers     map[catalog.UrgencyTier]decimal.Decimal `json:"multipliers"`
	SelectedUrgency catalog.UrgencyTier                     `json:"selectedUrgency"`
	Multiplier      decimal.Decimal                         `json:"multiplier"`
	PriceBefore     determinism.Money                       `json:"priceBefore"`
	PriceAfter      determinism.Money                       `json:"priceAfter"`
}

// DiscountData is the payload of the discount_rules step
type DiscountData struct {
	Booking     discount.BookingContext `json:"bookingContext"`
	Evaluations []RuleEvaluation        `json:"evaluations"`
	Applied     []AppliedDiscount       `json:"applied"`
	PriceBefore determinism.Money       `json:"priceBefore"`
	PriceAfter  determinism.Money       `json:"priceAfter"`
}

// FinalPriceData is the payload of the final_price step
type FinalPriceData struct {
	Unrounded        determinism.Money `json:"unrounded"`
	FinalPrice       determinism.Money `json:"finalPrice"`
	Currency         string            `json:"currency"`
	CatalogVersionID string            `json:"catalogVersionId,omitempty"`
}

// Steps renders a breakdown into the four audit steps, in stage order.
// rl, when non-nil, is attached to the final_price step only.
func (b *PriceBreakdown) Steps(cat *catalog.RateCatalog, rl *audit.RLData) ([]audit.Step, error) {
	base := BasePricingData{
		Lines:     b.Lines,
		LaborRate: cat.LaborRate,
		Markup:    cat.PartsMarkup,
		BasePrice: b.BasePrice,
	}
	// the full table is frozen so later catalog edits cannot hide the tiers
	tiers := make(map[catalog.UrgencyTier]decimal.Decimal, len(cat.UrgencyMultipliers))
	for tier, m := range cat.UrgencyMultipliers {
		tiers[tier] = m
	}
	urgency := UrgencyData{
		Multipliers:     tiers,
		SelectedUrgency: b.SelectedUrgency,
		Multiplier:      b.UrgencyMultiplier,
		PriceBefore:     b.BasePrice,
		PriceAfter:      b.AfterUrgency,
	}
	discounts := DiscountData{
		Booking:     b.BookingContext,
		Evaluations: b.Evaluations,
		Applied:     b.AppliedDiscounts,
		PriceBefore: b.AfterUrgency,
		PriceAfter:  b.AfterDiscounts,
	}
	final := FinalPriceData{
		Unrounded:        b.AfterDiscounts,
		FinalPrice:       b.FinalPrice,
		Currency:         b.Currency,
		CatalogVersionID: b.CatalogVersionID,
	}

	stages := []struct {
		stage  audit.Stage
		title  string
		desc   string
		schema string
		data   interface{}
	}{
		{audit.StageBasePricing, "Base pricing", describeBase(b), SchemaBasePricing, base},
		{audit.StageUrgencyMultiplier, "Urgency multiplier", describeUrgency(b), SchemaUrgencyMultiplier, urgency},
		{audit.StageDiscountRules, "Discount rules", describeDiscounts(b), SchemaDiscountRules, discounts},
		{audit.StageFinalPrice, "Final price", fmt.Sprintf("Final price %s", b.FinalPrice), SchemaFinalPrice, final},
	}

	steps := make([]audit.Step, 0, len(stages))
	for i, st := range stages {
		data, err := json.Marshal(st.data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s step: %w", st.stage, err)
		}
		steps = append(steps, audit.Step{
			Sequence:    i + 1,
			Stage:       st.stage,
			Title:       st.title,
			Description: st.desc,
			Schema:      st.schema,
			Data:        data,
		})
	}

	if rl != nil {
		copied := *rl
		copied.Payload = append(json.RawMessage(nil), rl.Payload...)
		steps[len(steps)-1].RLData = &copied
	}

	if err := audit.ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func describeBase(b *PriceBreakdown) string {
	keys := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		if l.Quantity > 1 {
			keys = append(keys, fmt.Sprintf("%s x%d", l.ServiceKey, l.Quantity))
		} else {
			keys = append(keys, l.ServiceKey)
		}
	}
	return fmt.Sprintf("Base price %s for %s", b.BasePrice, strings.Join(keys, ", "))
}

func describeUrgency(b *PriceBreakdown) string {
	return fmt.Sprintf("%s urgency x%s: %s -> %s", b.SelectedUrgency, b.UrgencyMultiplier, b.BasePrice, b.AfterUrgency)
}

func describeDiscounts(b *PriceBreakdown) string {
	if len(b.AppliedDiscounts) == 0 {
		return "No discounts applied"
	}
	parts := make([]string, 0, len(b.AppliedDiscounts))
	for _, a := range b.AppliedDiscounts {
		parts = append(parts, fmt.Sprintf("%s %s%%", a.Kind, a.Percentage))
	}
	return fmt.Sprintf("Applied %s: %s -> %s", strings.Join(parts, ", "), b.AfterUrgency, b.AfterDiscounts)
}
