// Package catalog - Versioned rate catalog
// A RateCatalog is one immutable snapshot of a tenant's base rates, labor rate,
// parts markup, urgency multipliers and discount rule set. Catalogs are never
// edited in place: every change produces a new version.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"shop-pricing/core/discount"
)

// UrgencyTier is a named booking-priority level
type UrgencyTier string

const (
	UrgencyStandard  UrgencyTier = "standard"
	UrgencyExpedited UrgencyTier = "expedited"
	UrgencyEmergency UrgencyTier = "emergency"
)

// DefaultCurrency is used when a catalog does not name one
const DefaultCurrency = "USD"

// DefaultActor marks versions and entries written by the system itself
const DefaultActor = "system"

// RateCatalog is IMMUTABLE once superseded.
type RateCatalog struct {
	// ID identifies this version; empty for the implicit default catalog
	ID string `json:"id,omitempty"`

	// TenantID scopes the catalog
	TenantID string `json:"tenantId"`

	// Version is the 1-based sequence number assigned by the store
	Version int `json:"version"`

	// Currency is the ISO code every amount is expressed in
	Currency string `json:"currency"`

	// ServiceRates maps service-category key to base price per unit
	ServiceRates map[string]decimal.Decimal `json:"serviceBaseRates"`

	// LaborRate is the price of one labor hour
	LaborRate decimal.Decimal `json:"laborRate"`

	// PartsMarkup multiplies parts cost (1.15 = 15% markup)
	PartsMarkup decimal.Decimal `json:"partsMarkup"`

	// UrgencyMultipliers maps tier to price multiplier
	UrgencyMultipliers map[UrgencyTier]decimal.Decimal `json:"urgencyMultipliers"`

	// Discounts is the ordered discount rule set
	Discounts discount.Set `json:"discounts"`

	// Provenance
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`

	// IsDefault is true only for the hard-coded fallback, never for stored rows
	IsDefault bool `json:"isDefault,omitempty"`
}

// Rate returns the base rate for a service key
func (c *RateCatalog) Rate(serviceKey string) (decimal.Decimal, bool) {
	rate, ok := c.ServiceRates[serviceKey]
	return rate, ok
}

// Multiplier returns the multiplier for an urgency tier
func (c *RateCatalog) Multiplier(tier UrgencyTier) (decimal.Decimal, bool) {
	m, ok := c.UrgencyMultipliers[tier]
	return m, ok
}

// CurrencyOrDefault returns the catalog currency, falling back to USD
func (c *RateCatalog) CurrencyOrDefault() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

// Clone returns a deep copy; maps and rule slices are not shared
func (c *RateCatalog) Clone() *RateCatalog {
	if c == nil {
		return nil
	}
	out := *c
	out.ServiceRates = make(map[string]decimal.Decimal, len(c.ServiceRates))
	for k, v := range c.ServiceRates {
		out.ServiceRates[k] = v
	}
	out.UrgencyMultipliers = make(map[UrgencyTier]decimal.Decimal, len(c.UrgencyMultipliers))
	for k, v := range c.UrgencyMultipliers {
		out.UrgencyMultipliers[k] = v
	}
	out.Discounts = c.Discounts.Clone()
	return &out
}

// NextDraft copies c into an unsaved draft for tenantID: identity and
// version are cleared so the store assigns fresh ones.
func (c *RateCatalog) NextDraft(tenantID, actor string, at time.Time) *RateCatalog {
	draft := c.Clone()
	draft.ID = ""
	draft.Version = 0
	draft.TenantID = tenantID
	draft.IsDefault = false
	draft.UpdatedAt = at
	draft.UpdatedBy = actor
	return draft
}

// Default returns the hard-coded catalog a tenant operates on until its first
// settings update. The system never prices against a nil catalog.
func Default(tenantID string) *RateCatalog {
	return &RateCatalog{
		TenantID: tenantID,
		Currency: DefaultCurrency,
		ServiceRates: map[string]decimal.Decimal{
			"oil_change":       decimal.RequireFromString("49.99"),
			"tire_rotation":    decimal.RequireFromString("29.99"),
			"brake_inspection": decimal.RequireFromString("39.99"),
			"brake_pads":       decimal.RequireFromString("149.00"),
			"diagnostics":      decimal.RequireFromString("89.00"),
			"battery_replace":  decimal.RequireFromString("119.00"),
			"wheel_alignment":  decimal.RequireFromString("99.00"),
		},
		LaborRate:   decimal.RequireFromString("95.00"),
		PartsMarkup: decimal.RequireFromString("1.15"),
		UrgencyMultipliers: map[UrgencyTier]decimal.Decimal{
			UrgencyStandard:  decimal.NewFromInt(1),
			UrgencyExpedited: decimal.RequireFromString("1.25"),
			UrgencyEmergency: decimal.RequireFromString("1.5"),
		},
		Discounts: discount.DefaultSet(),
		UpdatedBy: DefaultActor,
		IsDefault: true,
	}
}
