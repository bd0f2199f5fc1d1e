// Package settings implements tenant-scoped pricing settings administration:
// reading the catalog in effect, and applying a patch as one new catalog
// version plus one change-log entry per changed field, atomically.
package settings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/core/principal"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
	"shop-pricing/internal/metrics"
)

// Store is the persistence the settings service needs
type Store interface {
	db.SettingsStore
	db.TxManager
	AppendLogEntries(ctx context.Context, entries []audit.LogEntry) ([]audit.LogEntry, error)
}

// Update is a patch over the current catalog. Nil or empty fields are left
// untouched; Discounts, when non-nil, replaces the whole rule set.
type Update struct {
	ServiceRates       map[string]decimal.Decimal              `json:"serviceBaseRates,omitempty"`
	RemoveServices     []string                                `json:"removeServices,omitempty"`
	LaborRate          *decimal.Decimal                        `json:"laborRate,omitempty"`
	PartsMarkup        *decimal.Decimal                        `json:"partsMarkup,omitempty"`
	UrgencyMultipliers map[catalog.UrgencyTier]decimal.Decimal `json:"urgencyMultipliers,omitempty"`
	Discounts          discount.Set                            `json:"discounts,omitempty"`
	Reason             string                                  `json:"reason,omitempty"`
}

// Change is the outcome of an update. Entries is empty and Catalog is the
// unchanged current catalog when the update changed nothing.
type Change struct {
	Catalog *catalog.RateCatalog `json:"catalog"`
	Entries []audit.LogEntry     `json:"entries"`
}

// Changed reports whether a new version was written
func (c *Change) Changed() bool {
	return len(c.Entries) > 0
}

// Fallback supplies the catalog of a tenant that never saved settings
type Fallback func(tenantID string) *catalog.RateCatalog

// Service administers tenant pricing settings
type Service struct {
	store    Store
	fallback Fallback
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithFallback sets the catalog used before a tenant's first save
func WithFallback(f Fallback) Option {
	return func(s *Service) {
		if f != nil {
			s.fallback = f
		}
	}
}

// WithClock replaces the service clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a settings service
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		fallback: catalog.Default,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.Named("settings"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the catalog in effect for tenantID, or the fallback
// catalog if the tenant never saved settings. No authorization is applied;
// callers that expose it must check the principal themselves.
func (s *Service) Current(ctx context.Context, tenantID string) (*catalog.RateCatalog, error) {
	if tenantID == "" {
		return nil, errors.Validation("tenant id is required")
	}
	cat, err := s.store.GetCurrentCatalog(ctx, tenantID)
	if errors.IsType(err, errors.TypeNotFound) {
		return s.fallbackFor(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// CurrentSettings is Current behind a read authorization check
func (s *Service) CurrentSettings(ctx context.Context, p principal.Principal, tenantID string) (*catalog.RateCatalog, error) {
	if err := p.RequireRead(tenantID); err != nil {
		return nil, err
	}
	return s.Current(ctx, tenantID)
}

// SettingsAt returns the catalog that was in effect at instant at
func (s *Service) SettingsAt(ctx context.Context, p principal.Principal, tenantID string, at time.Time) (*catalog.RateCatalog, error) {
	if err := p.RequireRead(tenantID); err != nil {
		return nil, err
	}
	cat, err := s.store.GetCatalogAt(ctx, tenantID, at)
	if errors.IsType(err, errors.TypeNotFound) {
		return s.fallbackFor(tenantID), nil
	}
	return cat, err
}

// History lists the tenant's stored catalog versions, newest first
func (s *Service) History(ctx context.Context, p principal.Principal, tenantID string, page db.Page) ([]*catalog.RateCatalog, error) {
	if err := p.RequireRead(tenantID); err != nil {
		return nil, err
	}
	return s.store.ListCatalogVersions(ctx, tenantID, page)
}

// UpdateSettings applies u to the tenant's current catalog. Authorization
// is checked before any store access. The new version and its log entries
// are written in one transaction; either all of them persist or none.
func (s *Service) UpdateSettings(ctx context.Context, p principal.Principal, tenantID string, u Update) (*Change, error) {
	log := s.log.With(logging.Tenant(tenantID), logging.Actor(p.UserID))

	if err := p.RequireWrite(tenantID); err != nil {
		metrics.RecordSettingsUpdate(metrics.OutcomeRejected)
		log.Warn("settings update rejected", zap.String("role", string(p.Role)))
		return nil, err
	}

	var change *Change
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockTenant(ctx, tenantID); err != nil {
			return err
		}
		current, err := s.Current(ctx, tenantID)
		if err != nil {
			return err
		}

		at := s.now()
		next := current.NextDraft(tenantID, p.UserID, at)
		if err := u.applyTo(next); err != nil {
			return err
		}
		if err := next.ValidateDefault(); err != nil {
			return errors.Validation(err.Error())
		}

		changes := catalog.Diff(current, next)
		if len(changes) == 0 {
			change = &Change{Catalog: current, Entries: []audit.LogEntry{}}
			return nil
		}

		stored, err := s.store.InsertCatalogVersion(ctx, next)
		if err != nil {
			return err
		}
		entries, err := s.store.AppendLogEntries(ctx, audit.EntriesFromChanges(tenantID, stored.ID, u.Reason, p.UserID, at, changes))
		if err != nil {
			return err
		}
		change = &Change{Catalog: stored, Entries: entries}
		return nil
	})
	if err != nil {
		outcome := metrics.OutcomeStoreFail
		if errors.IsType(err, errors.TypeValidation) {
			outcome = metrics.OutcomeInvalid
		}
		metrics.RecordSettingsUpdate(outcome)
		log.Error("settings update failed", zap.Error(err))
		return nil, err
	}

	if !change.Changed() {
		metrics.RecordSettingsUpdate(metrics.OutcomeNoChange)
		log.Info("settings update changed nothing")
		return change, nil
	}

	metrics.RecordSettingsUpdate(metrics.OutcomeOK)
	for _, e := range change.Entries {
		metrics.RecordLogEntry(string(e.ChangeType))
	}
	log.Info("settings updated",
		zap.String("catalog_version_id", change.Catalog.ID),
		zap.Int("version", change.Catalog.Version),
		zap.Int("changes", len(change.Entries)),
	)
	return change, nil
}

func (s *Service) fallbackFor(tenantID string) *catalog.RateCatalog {
	cat := s.fallback(tenantID).Clone()
	cat.TenantID = tenantID
	cat.IsDefault = true
	return cat
}

// applyTo patches cat in place
func (u Update) applyTo(cat *catalog.RateCatalog) error {
	for key, rate := range u.ServiceRates {
		if key == "" {
			return errors.Validation("service key must not be empty")
		}
		cat.ServiceRates[key] = rate
	}
	for _, key := range u.RemoveServices {
		if _, ok := u.ServiceRates[key]; ok {
			return errors.Validationf("service %q is both set and removed", key)
		}
		delete(cat.ServiceRates, key)
	}
	if u.LaborRate != nil {
		cat.LaborRate = *u.LaborRate
	}
	if u.PartsMarkup != nil {
		cat.PartsMarkup = *u.PartsMarkup
	}
	for tier, m := range u.UrgencyMultipliers {
		cat.UrgencyMultipliers[tier] = m
	}
	if u.Discounts != nil {
		cat.Discounts = u.Discounts.Clone()
	}
	return nil
}
