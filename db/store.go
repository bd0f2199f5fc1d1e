// Package db defines the persistence contracts of the pricing core.
// Implementations live in db/memory and db/postgres.
package db

import (
	"context"
	"time"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
)

// Page bounds a list query
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Page size limits
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize applies the default limit and clamps out-of-range values
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// SettingsStore persists versioned rate catalogs. Versions are append-only:
// InsertCatalogVersion assigns the next version number and an ID and never
// touches earlier rows.
type SettingsStore interface {
	// GetCurrentCatalog returns the newest version for tenantID, or a
	// NOT_FOUND error when the tenant has never saved settings.
	GetCurrentCatalog(ctx context.Context, tenantID string) (*catalog.RateCatalog, error)

	// GetCatalogByID returns one specific version
	GetCatalogByID(ctx context.Context, tenantID, versionID string) (*catalog.RateCatalog, error)

	// GetCatalogAt returns the newest version whose UpdatedAt is not after
	// at, or NOT_FOUND when none was in effect yet.
	GetCatalogAt(ctx context.Context, tenantID string, at time.Time) (*catalog.RateCatalog, error)

	// ListCatalogVersions returns every version of tenantID, newest first
	ListCatalogVersions(ctx context.Context, tenantID string, page Page) ([]*catalog.RateCatalog, error)

	// LockTenant serializes settings writers of tenantID until the
	// surrounding transaction ends. It must be called inside RunInTx.
	LockTenant(ctx context.Context, tenantID string) error

	// InsertCatalogVersion stores cat as the tenant's newest version and
	// returns it with ID and Version filled in.
	InsertCatalogVersion(ctx context.Context, cat *catalog.RateCatalog) (*catalog.RateCatalog, error)
}

// LogStore persists the append-only settings change log and calculation runs
type LogStore interface {
	// AppendLogEntries stores entries, filling in their IDs
	AppendLogEntries(ctx context.Context, entries []audit.LogEntry) ([]audit.LogEntry, error)

	// ListLogEntries returns tenantID's entries newest first
	ListLogEntries(ctx context.Context, tenantID string, page Page) ([]audit.LogEntry, error)

	// AppendRun stores a calculation run once. Its steps are frozen.
	AppendRun(ctx context.Context, run *audit.Run) error

	// GetRun returns the run with runID, verified against its content hash
	GetRun(ctx context.Context, runID string) (*audit.Run, error)
}

// TxManager runs fn in a single transaction. Stores invoked with the
// context passed to fn take part in that transaction.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the pricing engine needs from persistence
type Store interface {
	SettingsStore
	LogStore
	TxManager

	Ping(ctx context.Context) error
	Close() error
}
