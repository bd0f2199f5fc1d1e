// Package engine provides the API-primary pricing engine.
// The CLI and the HTTP server are thin wrappers around it.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/pricing"
	"shop-pricing/core/principal"
	"shop-pricing/core/settings"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
	"shop-pricing/internal/metrics"
)

// Engine is the primary API for pricing.
// Every operation is tenant-scoped and checks the caller first.
type Engine struct {
	store    db.Store
	settings *settings.Service
	audit    *audit.Writer
	now      func() time.Time
	log      *zap.Logger
}

// Config configures the engine
type Config struct {
	// Fallback is the catalog of tenants that never saved settings.
	// Nil uses the built-in default catalog.
	Fallback settings.Fallback

	// Clock overrides time.Now, for tests
	Clock func() time.Time
}

// New creates an engine over store
func New(store db.Store, cfg Config) *Engine {
	now := cfg.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    store,
		settings: settings.NewService(store, settings.WithFallback(cfg.Fallback), settings.WithClock(now)),
		audit:    audit.NewWriter(store).WithClock(now),
		now:      now,
		log:      logging.Named("engine"),
	}
}

// Settings exposes the settings service for read-only views
func (e *Engine) Settings() *settings.Service {
	return e.settings
}

// QuoteRequest is the input to Quote
type QuoteRequest struct {
	pricing.Request

	// Record persists the calculation steps as an audit run
	Record bool `json:"record,omitempty"`

	// RLData is attached to the final_price step when recording
	RLData *audit.RLData `json:"rlData,omitempty"`
}

// Quote is the output of Quote
type Quote struct {
	Breakdown *pricing.PriceBreakdown `json:"breakdown"`

	// Run is set when the calculation was recorded
	Run *audit.Run `json:"run,omitempty"`
}

// ComputePrice prices a selection against the tenant's current catalog
// without recording it.
func (e *Engine) ComputePrice(ctx context.Context, p principal.Principal, tenantID string, req pricing.Request) (*pricing.PriceBreakdown, error) {
	q, err := e.Quote(ctx, p, tenantID, QuoteRequest{Request: req})
	if err != nil {
		return nil, err
	}
	return q.Breakdown, nil
}

// Quote resolves the current catalog, computes the price and, if asked,
// records the steps. A zero booking time is replaced by the engine clock.
func (e *Engine) Quote(ctx context.Context, p principal.Principal, tenantID string, req QuoteRequest) (*Quote, error) {
	urgency := string(req.Urgency)
	if err := p.RequireRead(tenantID); err != nil {
		metrics.RecordQuote(urgency, metrics.OutcomeRejected, decimal.Zero)
		return nil, err
	}

	cat, err := e.settings.Current(ctx, tenantID)
	if err != nil {
		metrics.RecordQuote(urgency, metrics.OutcomeStoreFail, decimal.Zero)
		return nil, err
	}

	if req.Booking.Now.IsZero() {
		req.Booking.Now = e.now()
	}
	breakdown, err := pricing.Compute(cat, req.Request)
	if err != nil {
		metrics.RecordQuote(urgency, metrics.OutcomeInvalid, decimal.Zero)
		return nil, err
	}

	q := &Quote{Breakdown: breakdown}
	if req.Record {
		run, err := e.record(ctx, p, cat, breakdown, req.RLData)
		if err != nil {
			metrics.RecordQuote(urgency, outcomeOf(err), decimal.Zero)
			return nil, err
		}
		q.Run = run
	}

	metrics.RecordQuote(urgency, metrics.OutcomeOK, breakdown.FinalPrice.Amount())
	e.log.Debug("quoted",
		logging.Tenant(tenantID),
		logging.Actor(p.UserID),
		zap.String("urgency", urgency),
		zap.String("final_price", breakdown.FinalPrice.String()),
		zap.Bool("recorded", q.Run != nil),
	)
	return q, nil
}

func (e *Engine) record(ctx context.Context, p principal.Principal, cat *catalog.RateCatalog, b *pricing.PriceBreakdown, rl *audit.RLData) (*audit.Run, error) {
	if rl != nil && rl.Namespace == "" {
		return nil, errors.Validation("rlData namespace is required")
	}
	steps, err := b.Steps(cat, rl)
	if err != nil {
		return nil, errors.Internal("failed to render calculation steps", err)
	}
	return e.audit.Record(ctx, b.TenantID, p.UserID, cat.ID, steps)
}

// UpdateSettings applies an update as one new catalog version
func (e *Engine) UpdateSettings(ctx context.Context, p principal.Principal, tenantID string, u settings.Update) (*settings.Change, error) {
	return e.settings.UpdateSettings(ctx, p, tenantID, u)
}

// CurrentSettings returns the catalog in effect for tenantID
func (e *Engine) CurrentSettings(ctx context.Context, p principal.Principal, tenantID string) (*catalog.RateCatalog, error) {
	return e.settings.CurrentSettings(ctx, p, tenantID)
}

// SettingsHistory lists the tenant's catalog versions, newest first
func (e *Engine) SettingsHistory(ctx context.Context, p principal.Principal, tenantID string, page db.Page) ([]*catalog.RateCatalog, error) {
	return e.settings.History(ctx, p, tenantID, page)
}

// GetPricingLogs lists the tenant's settings change log, newest first
func (e *Engine) GetPricingLogs(ctx context.Context, p principal.Principal, tenantID string, page db.Page) ([]audit.LogEntry, error) {
	if err := p.RequireRead(tenantID); err != nil {
		return nil, err
	}
	return e.store.ListLogEntries(ctx, tenantID, page.Normalize())
}

// GetPricingLogSteps returns a recorded run exactly as it was stored
func (e *Engine) GetPricingLogSteps(ctx context.Context, p principal.Principal, tenantID, runID string) (*audit.Run, error) {
	if err := p.RequireRead(tenantID); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.Validation("run id is required")
	}
	return e.audit.Steps(ctx, tenantID, runID)
}

// Ping checks the store
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func outcomeOf(err error) string {
	if errors.IsType(err, errors.TypeValidation) {
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeStoreFail
}
