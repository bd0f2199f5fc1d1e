// Package catalog - Catalog validation
// Ensures every stored version satisfies the catalog invariants.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shop-pricing/core/determinism"
)

// ValidationRule is a catalog validation rule
type ValidationRule func(*RateCatalog) error

// DefaultValidationRules returns the standard validation rules
func DefaultValidationRules() []ValidationRule {
	return []ValidationRule{
		validateTenant,
		validateServiceRates,
		validateLaborRate,
		validatePartsMarkup,
		validateUrgencyMultipliers,
		validateDiscounts,
	}
}

// Validate checks a catalog against validation rules
func (c *RateCatalog) Validate(rules []ValidationRule) []error {
	var errors []error

	for _, rule := range rules {
		if err := rule(c); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}

// ValidateDefault runs DefaultValidationRules and returns the first failure
func (c *RateCatalog) ValidateDefault() error {
	if errs := c.Validate(DefaultValidationRules()); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func validateTenant(c *RateCatalog) error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	return nil
}

func validateServiceRates(c *RateCatalog) error {
	for _, key := range determinism.SortedKeys(c.ServiceRates) {
		if key == "" {
			return fmt.Errorf("service key must not be empty")
		}
		if c.ServiceRates[key].IsNegative() {
			return fmt.Errorf("service %s: base rate must be non-negative, got %s", key, c.ServiceRates[key])
		}
	}
	return nil
}

func validateLaborRate(c *RateCatalog) error {
	if c.LaborRate.IsNegative() {
		return fmt.Errorf("labor rate must be non-negative, got %s", c.LaborRate)
	}
	return nil
}

func validatePartsMarkup(c *RateCatalog) error {
	if c.PartsMarkup.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("parts markup must be at least 1.0, got %s", c.PartsMarkup)
	}
	return nil
}

func validateUrgencyMultipliers(c *RateCatalog) error {
	if len(c.UrgencyMultipliers) == 0 {
		return fmt.Errorf("at least one urgency tier is required")
	}
	for _, tier := range determinism.SortedKeys(c.UrgencyMultipliers) {
		if tier == "" {
			return fmt.Errorf("urgency tier name must not be empty")
		}
		if m := c.UrgencyMultipliers[tier]; m.LessThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("urgency %s: multiplier must be at least 1.0, got %s", tier, m)
		}
	}
	return nil
}

func validateDiscounts(c *RateCatalog) error {
	return c.Discounts.Validate()
}
