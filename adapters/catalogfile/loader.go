// Package catalogfile loads rate catalogs from HCL seed files.
//
//	currency     = "USD"
//	labor_rate   = 95
//	parts_markup = 1.15
//
//	service "oil_change" { rate = 49.99 }
//	urgency "emergency" { multiplier = 1.5 }
//	discount "loyalty" {
//	  enabled    = true
//	  percentage = 10
//	  threshold  = 3
//	}
//
// Numbers may also be written as strings ("49.99") to keep exact text.
// Discount blocks keep their file order, which is the compounding order.
package catalogfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"

	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/internal/errors"
)

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "currency"},
		{Name: "labor_rate", Required: true},
		{Name: "parts_markup", Required: true},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "service", LabelNames: []string{"key"}},
		{Type: "urgency", LabelNames: []string{"tier"}},
		{Type: "discount", LabelNames: []string{"kind"}},
	},
}

var serviceSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "rate", Required: true}},
}

var urgencySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "multiplier", Required: true}},
}

var discountSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "enabled"},
		{Name: "percentage", Required: true},
		{Name: "threshold"},
		{Name: "months"},
	},
}

// Loader parses catalog seed files
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a loader
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// LoadFile reads and parses path
func (l *Loader) LoadFile(path string) (*catalog.RateCatalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("failed to read catalog file", err).WithContext("path", path)
	}
	return l.Parse(src, path)
}

// Parse decodes src into a catalog template. The result carries no tenant;
// use Fallback or NextDraft to bind it.
func (l *Loader) Parse(src []byte, filename string) (*catalog.RateCatalog, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, diagError(diags)
	}

	cat := &catalog.RateCatalog{
		Currency:           catalog.DefaultCurrency,
		ServiceRates:       make(map[string]decimal.Decimal),
		UrgencyMultipliers: make(map[catalog.UrgencyTier]decimal.Decimal),
		Discounts:          discount.Set{},
		UpdatedBy:          catalog.DefaultActor,
	}

	if attr, ok := content.Attributes["currency"]; ok {
		v, err := stringAttr(attr)
		if err != nil {
			return nil, err
		}
		cat.Currency = strings.ToUpper(v)
	}
	var err error
	if cat.LaborRate, err = decimalAttr(content.Attributes["labor_rate"]); err != nil {
		return nil, err
	}
	if cat.PartsMarkup, err = decimalAttr(content.Attributes["parts_markup"]); err != nil {
		return nil, err
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "service":
			if err := decodeService(cat, block); err != nil {
				return nil, err
			}
		case "urgency":
			if err := decodeUrgency(cat, block); err != nil {
				return nil, err
			}
		case "discount":
			rule, err := decodeDiscount(block)
			if err != nil {
				return nil, err
			}
			cat.Discounts = append(cat.Discounts, rule)
		}
	}

	// tenant is bound later; validate everything else
	probe := cat.Clone()
	probe.TenantID = "seed"
	if err := probe.ValidateDefault(); err != nil {
		return nil, errors.Validationf("%s: %v", filename, err)
	}
	return cat, nil
}

// Fallback returns a settings fallback that binds the seed to each tenant
func Fallback(seed *catalog.RateCatalog) func(tenantID string) *catalog.RateCatalog {
	return func(tenantID string) *catalog.RateCatalog {
		cat := seed.Clone()
		cat.TenantID = tenantID
		cat.IsDefault = true
		return cat
	}
}

func decodeService(cat *catalog.RateCatalog, block *hcl.Block) error {
	key := block.Labels[0]
	if _, dup := cat.ServiceRates[key]; dup {
		return blockError(block, "duplicate service %q", key)
	}
	body, diags := block.Body.Content(serviceSchema)
	if diags.HasErrors() {
		return diagError(diags)
	}
	rate, err := decimalAttr(body.Attributes["rate"])
	if err != nil {
		return err
	}
	cat.ServiceRates[key] = rate
	return nil
}

func decodeUrgency(cat *catalog.RateCatalog, block *hcl.Block) error {
	tier := catalog.UrgencyTier(block.Labels[0])
	if _, dup := cat.UrgencyMultipliers[tier]; dup {
		return blockError(block, "duplicate urgency tier %q", tier)
	}
	body, diags := block.Body.Content(urgencySchema)
	if diags.HasErrors() {
		return diagError(diags)
	}
	m, err := decimalAttr(body.Attributes["multiplier"])
	if err != nil {
		return err
	}
	cat.UrgencyMultipliers[tier] = m
	return nil
}

func decodeDiscount(block *hcl.Block) (discount.Rule, error) {
	kind := discount.Kind(block.Labels[0])
	if !kind.Known() {
		return discount.Rule{}, blockError(block, "unknown discount kind %q", kind)
	}
	body, diags := block.Body.Content(discountSchema)
	if diags.HasErrors() {
		return discount.Rule{}, diagError(diags)
	}

	pct, err := decimalAttr(body.Attributes["percentage"])
	if err != nil {
		return discount.Rule{}, err
	}
	enabled := false
	if attr, ok := body.Attributes["enabled"]; ok {
		if enabled, err = boolAttr(attr); err != nil {
			return discount.Rule{}, err
		}
	}

	switch kind {
	case discount.KindSeasonal:
		var months []time.Month
		if attr, ok := body.Attributes["months"]; ok {
			if months, err = monthsAttr(attr); err != nil {
				return discount.Rule{}, err
			}
		}
		return discount.Seasonal(enabled, pct, months...), nil
	default:
		threshold := 0
		if attr, ok := body.Attributes["threshold"]; ok {
			if threshold, err = intAttr(attr); err != nil {
				return discount.Rule{}, err
			}
		}
		if kind == discount.KindLoyalty {
			return discount.Loyalty(enabled, pct, threshold), nil
		}
		return discount.Bundle(enabled, pct, threshold), nil
	}
}

func value(attr *hcl.Attribute) (cty.Value, error) {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, diagError(diags)
	}
	if v.IsNull() || !v.IsKnown() {
		return cty.NilVal, attrError(attr, "%s must have a value", attr.Name)
	}
	return v, nil
}

// decimalAttr accepts numbers and numeric strings
func decimalAttr(attr *hcl.Attribute) (decimal.Decimal, error) {
	v, err := value(attr)
	if err != nil {
		return decimal.Decimal{}, err
	}
	var text string
	switch v.Type() {
	case cty.Number:
		text = v.AsBigFloat().Text('f', -1)
	case cty.String:
		text = v.AsString()
	default:
		return decimal.Decimal{}, attrError(attr, "%s must be a number", attr.Name)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, attrError(attr, "%s: %v", attr.Name, err)
	}
	return d, nil
}

func intAttr(attr *hcl.Attribute) (int, error) {
	d, err := decimalAttr(attr)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, attrError(attr, "%s must be a whole number", attr.Name)
	}
	return int(d.IntPart()), nil
}

func boolAttr(attr *hcl.Attribute) (bool, error) {
	v, err := value(attr)
	if err != nil {
		return false, err
	}
	if v.Type() != cty.Bool {
		return false, attrError(attr, "%s must be true or false", attr.Name)
	}
	return v.True(), nil
}

func stringAttr(attr *hcl.Attribute) (string, error) {
	v, err := value(attr)
	if err != nil {
		return "", err
	}
	if v.Type() != cty.String {
		return "", attrError(attr, "%s must be a string", attr.Name)
	}
	return v.AsString(), nil
}

func monthsAttr(attr *hcl.Attribute) ([]time.Month, error) {
	v, err := value(attr)
	if err != nil {
		return nil, err
	}
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return nil, attrError(attr, "months must be a list of numbers")
	}
	var months []time.Month
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		if elem.Type() != cty.Number {
			return nil, attrError(attr, "months must be a list of numbers")
		}
		f := elem.AsBigFloat()
		if !f.IsInt() {
			return nil, attrError(attr, "month %s is not a whole number", f.Text('f', -1))
		}
		n, _ := f.Int64()
		months = append(months, time.Month(n))
	}
	return months, nil
}

func diagError(diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		e := errors.Validation(msg)
		if d.Subject != nil {
			e.WithContext("file", d.Subject.Filename).WithContext("line", d.Subject.Start.Line)
		}
		return e
	}
	return errors.Validation(diags.Error())
}

func blockError(block *hcl.Block, format string, args ...interface{}) error {
	return errors.Validationf(format, args...).
		WithContext("file", block.DefRange.Filename).
		WithContext("line", block.DefRange.Start.Line)
}

func attrError(attr *hcl.Attribute, format string, args ...interface{}) error {
	return errors.Validation(fmt.Sprintf(format, args...)).
		WithContext("file", attr.Range.Filename).
		WithContext("line", attr.Range.Start.Line)
}
