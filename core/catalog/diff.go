package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"shop-pricing/core/determinism"
	"shop-pricing/core/discount"
)

// ChangeType classifies one audited settings change
type ChangeType string

const (
	ChangeServiceRate       ChangeType = "service_rate"
	ChangeLaborRate         ChangeType = "labor_rate"
	ChangePartsMarkup       ChangeType = "parts_markup"
	ChangeUrgencyMultiplier ChangeType = "urgency_multiplier"
	ChangeDiscountRule      ChangeType = "discount_rule"
)

// FieldChange is one changed field between two catalog versions.
// An empty OldValue means the field was added, an empty NewValue that it was removed.
type FieldChange struct {
	Type     ChangeType `json:"changeType"`
	Field    string     `json:"fieldName"`
	OldValue string     `json:"oldValue"`
	NewValue string     `json:"newValue"`
}

// Diff compares two catalogs field by field. Unchanged fields produce nothing.
// Output order is stable: service rates by key, labor rate, parts markup,
// urgency tiers by name, then discount rules.
func Diff(old, next *RateCatalog) []FieldChange {
	var changes []FieldChange

	changes = append(changes, diffDecimalMap(ChangeServiceRate, "serviceBaseRates.", old.ServiceRates, next.ServiceRates)...)

	if !old.LaborRate.Equal(next.LaborRate) {
		changes = append(changes, FieldChange{
			Type:     ChangeLaborRate,
			Field:    "laborRate",
			OldValue: old.LaborRate.String(),
			NewValue: next.LaborRate.String(),
		})
	}

	if !old.PartsMarkup.Equal(next.PartsMarkup) {
		changes = append(changes, FieldChange{
			Type:     ChangePartsMarkup,
			Field:    "partsMarkup",
			OldValue: old.PartsMarkup.String(),
			NewValue: next.PartsMarkup.String(),
		})
	}

	changes = append(changes, diffDecimalMap(ChangeUrgencyMultiplier, "urgencyMultipliers.", old.UrgencyMultipliers, next.UrgencyMultipliers)...)
	changes = append(changes, diffDiscounts(old.Discounts, next.Discounts)...)

	return changes
}

func diffDecimalMap[K ~string](changeType ChangeType, prefix string, old, next map[K]decimal.Decimal) []FieldChange {
	keys := make(map[K]decimal.Decimal, len(old)+len(next))
	for k, v := range old {
		keys[k] = v
	}
	for k, v := range next {
		keys[k] = v
	}

	var changes []FieldChange
	for _, key := range determinism.SortedKeys(keys) {
		before, hadBefore := old[key]
		after, hasAfter := next[key]
		if hadBefore && hasAfter && before.Equal(after) {
			continue
		}
		change := FieldChange{Type: changeType, Field: prefix + string(key)}
		if hadBefore {
			change.OldValue = before.String()
		}
		if hasAfter {
			change.NewValue = after.String()
		}
		changes = append(changes, change)
	}
	return changes
}

func diffDiscounts(old, next discount.Set) []FieldChange {
	var changes []FieldChange

	for _, rule := range next {
		before, ok := old.Find(rule.Kind)
		if ok && before.Equal(rule) {
			continue
		}
		change := FieldChange{Type: ChangeDiscountRule, Field: "discounts." + string(rule.Kind), NewValue: rule.Canonical()}
		if ok {
			change.OldValue = before.Canonical()
		}
		changes = append(changes, change)
	}
	for _, rule := range old {
		if _, ok := next.Find(rule.Kind); !ok {
			changes = append(changes, FieldChange{
				Type:     ChangeDiscountRule,
				Field:    "discounts." + string(rule.Kind),
				OldValue: rule.Canonical(),
			})
		}
	}

	// Compounding follows declaration order, so a reorder changes prices
	// even when every rule is individually unchanged.
	if oldOrder, newOrder := kindOrder(old, next), kindOrder(next, old); oldOrder != newOrder {
		changes = append(changes, FieldChange{
			Type:     ChangeDiscountRule,
			Field:    "discounts.order",
			OldValue: oldOrder,
			NewValue: newOrder,
		})
	}
	return changes
}

// kindOrder lists the kinds of s that are also present in other, in s order
func kindOrder(s, other discount.Set) string {
	kinds := make([]string, 0, len(s))
	for _, r := range s {
		if _, ok := other.Find(r.Kind); ok {
			kinds = append(kinds, string(r.Kind))
		}
	}
	return strings.Join(kinds, ",")
}
