package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/core/pricing"
	"shop-pricing/core/principal"
	"shop-pricing/core/settings"
	"shop-pricing/db"
	"shop-pricing/db/memory"
	"shop-pricing/internal/errors"
)

var (
	owner   = principal.Principal{UserID: "owner-1", TenantID: "shop-1", Role: principal.RoleOwner}
	staff   = principal.Principal{UserID: "staff-1", TenantID: "shop-1", Role: principal.RoleStaff}
	foreign = principal.Principal{UserID: "owner-9", TenantID: "shop-9", Role: principal.RoleOwner}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fiftyDollarOilChange is the small catalog the pricing scenarios use
func fiftyDollarOilChange(tenantID string) *catalog.RateCatalog {
	return &catalog.RateCatalog{
		TenantID:     tenantID,
		Currency:     "USD",
		ServiceRates: map[string]decimal.Decimal{"oilChange": dec("50")},
		LaborRate:    dec("0"),
		PartsMarkup:  dec("1"),
		UrgencyMultipliers: map[catalog.UrgencyTier]decimal.Decimal{
			catalog.UrgencyStandard:  dec("1.0"),
			catalog.UrgencyEmergency: dec("1.5"),
		},
		Discounts: discount.Set{},
	}
}

func newEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	e := New(store, Config{
		Fallback: fiftyDollarOilChange,
		Clock: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return e, store
}

func oilChange() []pricing.ServiceSelection {
	return []pricing.ServiceSelection{{ServiceKey: "oilChange", Quantity: 1}}
}

func TestEmergencyQuoteWithoutDiscounts(t *testing.T) {
	e, _ := newEngine(t)

	b, err := e.ComputePrice(context.Background(), staff, "shop-1", pricing.Request{
		Selection: oilChange(),
		Urgency:   catalog.UrgencyEmergency,
	})
	require.NoError(t, err)
	assert.True(t, b.BasePrice.Amount().Equal(dec("50")))
	assert.True(t, b.AfterUrgency.Amount().Equal(dec("75")))
	assert.True(t, b.FinalPrice.Amount().Equal(dec("75")))
	assert.Empty(t, b.AppliedDiscounts)
}

func TestDiscountsCompoundThroughSettings(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.UpdateSettings(ctx, owner, "shop-1", settings.Update{
		Discounts: discount.Set{discount.Loyalty(true, dec("10"), 3)},
	})
	require.NoError(t, err)

	req := pricing.Request{
		Selection: oilChange(),
		Urgency:   catalog.UrgencyStandard,
		Booking:   discount.BookingContext{PriorServiceCount: 5},
	}
	b, err := e.ComputePrice(ctx, staff, "shop-1", req)
	require.NoError(t, err)
	assert.True(t, b.AfterDiscounts.Amount().Equal(dec("45")))
	require.Len(t, b.AppliedDiscounts, 1)
	assert.True(t, b.AppliedDiscounts[0].AmountRemoved.Amount().Equal(dec("5")))

	_, err = e.UpdateSettings(ctx, owner, "shop-1", settings.Update{
		Discounts: discount.Set{
			discount.Loyalty(true, dec("10"), 3),
			discount.Bundle(true, dec("20"), 2),
		},
	})
	require.NoError(t, err)

	req.Booking.ServicesInBooking = 3
	b, err = e.ComputePrice(ctx, staff, "shop-1", req)
	require.NoError(t, err)
	assert.Equal(t, "36.00", b.FinalPrice.Amount().StringFixed(2))
}

func TestUnknownServiceIsValidationError(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.ComputePrice(context.Background(), staff, "shop-1", pricing.Request{
		Selection: []pricing.ServiceSelection{{ServiceKey: "unknownService", Quantity: 1}},
		Urgency:   catalog.UrgencyStandard,
	})
	assert.True(t, errors.IsType(err, errors.TypeValidation), "got %v", err)
}

func TestQuoteRequiresTenantAccess(t *testing.T) {
	e, store := newEngine(t)
	store.FailNext("GetCurrentCatalog", fmt.Errorf("store must not be reached"))

	_, err := e.Quote(context.Background(), foreign, "shop-1", QuoteRequest{
		Request: pricing.Request{Selection: oilChange(), Urgency: catalog.UrgencyStandard},
	})
	assert.True(t, errors.IsType(err, errors.TypeAuthorization), "got %v", err)
}

func TestRecordedQuoteStepsAreFrozen(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	change, err := e.UpdateSettings(ctx, owner, "shop-1", settings.Update{LaborRate: ptr(dec("80"))})
	require.NoError(t, err)

	rl := &audit.RLData{Namespace: "her.v1", Payload: json.RawMessage(`{"episode":7}`)}
	q, err := e.Quote(ctx, staff, "shop-1", QuoteRequest{
		Request: pricing.Request{Selection: oilChange(), Urgency: catalog.UrgencyEmergency},
		Record:  true,
		RLData:  rl,
	})
	require.NoError(t, err)
	require.NotNil(t, q.Run)
	assert.Equal(t, "staff-1", q.Run.ActorID)
	assert.Equal(t, change.Catalog.ID, q.Run.CatalogVersionID)

	// later settings changes do not reach the stored run
	_, err = e.UpdateSettings(ctx, owner, "shop-1", settings.Update{
		ServiceRates: map[string]decimal.Decimal{"oilChange": dec("70")},
	})
	require.NoError(t, err)

	run, err := e.GetPricingLogSteps(ctx, staff, "shop-1", q.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Run.ContentHash, run.ContentHash)
	require.Len(t, run.Steps, 4)

	stages := make([]audit.Stage, 0, len(run.Steps))
	for _, s := range run.Steps {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, audit.StageOrder, stages)

	for _, s := range run.Steps[:3] {
		assert.Nil(t, s.RLData, "stage %s carries rl data", s.Stage)
	}
	require.NotNil(t, run.Steps[3].RLData)
	assert.Equal(t, "her.v1", run.Steps[3].RLData.Namespace)
	assert.JSONEq(t, `{"episode":7}`, string(run.Steps[3].RLData.Payload))

	var final pricing.FinalPriceData
	require.NoError(t, json.Unmarshal(run.Steps[3].Data, &final))
	assert.True(t, final.FinalPrice.Amount().Equal(dec("75")))
}

func TestRunsOfOtherTenantsAreNotFound(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	q, err := e.Quote(ctx, staff, "shop-1", QuoteRequest{
		Request: pricing.Request{Selection: oilChange(), Urgency: catalog.UrgencyStandard},
		Record:  true,
	})
	require.NoError(t, err)

	_, err = e.GetPricingLogSteps(ctx, foreign, "shop-9", q.Run.ID)
	assert.True(t, errors.IsType(err, errors.TypeNotFound), "got %v", err)

	_, err = e.GetPricingLogSteps(ctx, foreign, "shop-1", q.Run.ID)
	assert.True(t, errors.IsType(err, errors.TypeAuthorization), "got %v", err)
}

func TestRecordRequiresRLNamespace(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.Quote(context.Background(), staff, "shop-1", QuoteRequest{
		Request: pricing.Request{Selection: oilChange(), Urgency: catalog.UrgencyStandard},
		Record:  true,
		RLData:  &audit.RLData{Payload: json.RawMessage(`{}`)},
	})
	assert.True(t, errors.IsType(err, errors.TypeValidation), "got %v", err)
}

func TestRecordStoreFailure(t *testing.T) {
	e, store := newEngine(t)
	store.FailNext("AppendRun", fmt.Errorf("connection reset"))

	_, err := e.Quote(context.Background(), staff, "shop-1", QuoteRequest{
		Request: pricing.Request{Selection: oilChange(), Urgency: catalog.UrgencyStandard},
		Record:  true,
	})
	assert.True(t, errors.IsType(err, errors.TypeStore), "got %v", err)
}

func TestGetPricingLogs(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.UpdateSettings(ctx, owner, "shop-1", settings.Update{PartsMarkup: ptr(dec("1.2")), Reason: "suppliers"})
	require.NoError(t, err)
	_, err = e.UpdateSettings(ctx, owner, "shop-1", settings.Update{
		LaborRate:          ptr(dec("90")),
		UrgencyMultipliers: map[catalog.UrgencyTier]decimal.Decimal{catalog.UrgencyEmergency: dec("2")},
	})
	require.NoError(t, err)

	logs, err := e.GetPricingLogs(ctx, staff, "shop-1", db.Page{})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, catalog.ChangePartsMarkup, logs[2].ChangeType)
	assert.Equal(t, "suppliers", logs[2].Reason)

	page, err := e.GetPricingLogs(ctx, staff, "shop-1", db.Page{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, logs[2].ID, page[0].ID)

	_, err = e.GetPricingLogs(ctx, foreign, "shop-1", db.Page{})
	assert.True(t, errors.IsType(err, errors.TypeAuthorization))
}

func TestSettingsViews(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	cat, err := e.CurrentSettings(ctx, staff, "shop-1")
	require.NoError(t, err)
	assert.True(t, cat.IsDefault)

	_, err = e.UpdateSettings(ctx, staff, "shop-1", settings.Update{LaborRate: ptr(dec("1"))})
	assert.True(t, errors.IsType(err, errors.TypeAuthorization))

	_, err = e.UpdateSettings(ctx, owner, "shop-1", settings.Update{LaborRate: ptr(dec("1"))})
	require.NoError(t, err)

	history, err := e.SettingsHistory(ctx, staff, "shop-1", db.Page{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.NoError(t, e.Ping(ctx))
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
