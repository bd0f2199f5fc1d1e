// Package postgres implements db.Store on PostgreSQL through database/sql
// and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

// Store implements db.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ db.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(conn *sql.DB) *Store {
	return &Store{db: conn}
}

// Open connects to dsn, applies migrations and returns the store
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Config("failed to open postgres", err)
	}
	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Store("failed to reach postgres", err)
	}
	if err := Apply(ctx, conn); err != nil {
		conn.Close()
		return nil, errors.Store("failed to migrate postgres", err)
	}
	return New(conn), nil
}

// Ping implements db.Store
func (s *Store) Ping(ctx context.Context) error {
	return errors.Store("ping", s.db.PingContext(ctx))
}

// Close implements db.Store
func (s *Store) Close() error {
	return s.db.Close()
}

type txKey struct{}

// executor is the subset of *sql.DB and *sql.Tx the store needs
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// RunInTx implements db.TxManager. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Store("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Store("failed to commit transaction", err)
	}
	return nil
}

// --- SettingsStore ----------------------------------------------------------

const catalogColumns = `id, tenant_id, version, currency, service_rates, labor_rate, parts_markup,
	urgency_multipliers, discounts, updated_at, updated_by`

// LockTenant implements db.SettingsStore with a transaction-scoped advisory lock
func (s *Store) LockTenant(ctx context.Context, tenantID string) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); !ok {
		return errors.Internal("LockTenant called outside a transaction", nil)
	}
	_, err := s.conn(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID)
	return errors.Store("failed to lock tenant", err)
}

// GetCurrentCatalog implements db.SettingsStore
func (s *Store) GetCurrentCatalog(ctx context.Context, tenantID string) (*catalog.RateCatalog, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+catalogColumns+`
		FROM pricing_catalog_versions
		WHERE tenant_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, tenantID)

	cat, err := scanCatalog(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("catalog", tenantID)
	}
	if err != nil {
		return nil, errors.Store("failed to load current catalog", err)
	}
	return cat, nil
}

// GetCatalogByID implements db.SettingsStore
func (s *Store) GetCatalogByID(ctx context.Context, tenantID, versionID string) (*catalog.RateCatalog, error) {
	if _, err := uuid.Parse(versionID); err != nil {
		return nil, errors.NotFound("catalog version", versionID)
	}
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+catalogColumns+`
		FROM pricing_catalog_versions
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, versionID)

	cat, err := scanCatalog(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("catalog version", versionID)
	}
	if err != nil {
		return nil, errors.Store("failed to load catalog version", err)
	}
	return cat, nil
}

// GetCatalogAt implements db.SettingsStore
func (s *Store) GetCatalogAt(ctx context.Context, tenantID string, at time.Time) (*catalog.RateCatalog, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+catalogColumns+`
		FROM pricing_catalog_versions
		WHERE tenant_id = $1 AND updated_at <= $2
		ORDER BY updated_at DESC, version DESC
		LIMIT 1
	`, tenantID, at.UTC())

	cat, err := scanCatalog(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("catalog", fmt.Sprintf("%s at %s", tenantID, at.Format(time.RFC3339)))
	}
	if err != nil {
		return nil, errors.Store("failed to load catalog version", err)
	}
	return cat, nil
}

// ListCatalogVersions implements db.SettingsStore
func (s *Store) ListCatalogVersions(ctx context.Context, tenantID string, page db.Page) ([]*catalog.RateCatalog, error) {
	page = page.Normalize()
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+catalogColumns+`
		FROM pricing_catalog_versions
		WHERE tenant_id = $1
		ORDER BY version DESC
		LIMIT $2 OFFSET $3
	`, tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.Store("failed to list catalog versions", err)
	}
	defer rows.Close()

	out := make([]*catalog.RateCatalog, 0)
	for rows.Next() {
		cat, err := scanCatalog(rows)
		if err != nil {
			return nil, errors.Store("failed to scan catalog version", err)
		}
		out = append(out, cat)
	}
	return out, errors.Store("failed to list catalog versions", rows.Err())
}

// InsertCatalogVersion implements db.SettingsStore. The next version number
// is read under the tenant lock, so concurrent writers never collide.
func (s *Store) InsertCatalogVersion(ctx context.Context, cat *catalog.RateCatalog) (*catalog.RateCatalog, error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); !ok {
		var stored *catalog.RateCatalog
		err := s.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.InsertCatalogVersion(ctx, cat)
			return err
		})
		return stored, err
	}
	if cat.TenantID == "" {
		return nil, errors.Validation("catalog tenant id is required")
	}
	if err := s.LockTenant(ctx, cat.TenantID); err != nil {
		return nil, err
	}

	var next int
	if err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM pricing_catalog_versions
		WHERE tenant_id = $1
	`, cat.TenantID).Scan(&next); err != nil {
		return nil, errors.Store("failed to allocate catalog version", err)
	}

	stored := cat.Clone()
	stored.ID = uuid.NewString()
	stored.Version = next
	stored.IsDefault = false
	stored.Currency = cat.CurrencyOrDefault()

	rates, err := json.Marshal(stored.ServiceRates)
	if err != nil {
		return nil, errors.Internal("failed to encode service rates", err)
	}
	multipliers, err := json.Marshal(stored.UrgencyMultipliers)
	if err != nil {
		return nil, errors.Internal("failed to encode urgency multipliers", err)
	}
	discounts, err := json.Marshal(stored.Discounts)
	if err != nil {
		return nil, errors.Internal("failed to encode discounts", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO pricing_catalog_versions (`+catalogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, stored.ID, stored.TenantID, stored.Version, stored.Currency, rates, stored.LaborRate, stored.PartsMarkup,
		multipliers, discounts, stored.UpdatedAt.UTC(), stored.UpdatedBy)
	if err != nil {
		return nil, errors.Store("failed to insert catalog version", err)
	}
	return stored, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCatalog(row scanner) (*catalog.RateCatalog, error) {
	var (
		cat                                   catalog.RateCatalog
		ratesRaw, multipliersRaw, discountRaw []byte
		labor, markup                         decimal.Decimal
		updatedAt                             time.Time
	)
	if err := row.Scan(&cat.ID, &cat.TenantID, &cat.Version, &cat.Currency, &ratesRaw, &labor, &markup,
		&multipliersRaw, &discountRaw, &updatedAt, &cat.UpdatedBy); err != nil {
		return nil, err
	}
	cat.LaborRate = labor
	cat.PartsMarkup = markup
	cat.UpdatedAt = updatedAt.UTC()

	if err := json.Unmarshal(ratesRaw, &cat.ServiceRates); err != nil {
		return nil, fmt.Errorf("decode service rates: %w", err)
	}
	if err := json.Unmarshal(multipliersRaw, &cat.UrgencyMultipliers); err != nil {
		return nil, fmt.Errorf("decode urgency multipliers: %w", err)
	}
	var rules discount.Set
	if err := json.Unmarshal(discountRaw, &rules); err != nil {
		return nil, fmt.Errorf("decode discounts: %w", err)
	}
	cat.Discounts = rules
	return &cat, nil
}

// --- LogStore ---------------------------------------------------------------

// AppendLogEntries implements db.LogStore
func (s *Store) AppendLogEntries(ctx context.Context, entries []audit.LogEntry) ([]audit.LogEntry, error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); !ok && len(entries) > 1 {
		var stored []audit.LogEntry
		err := s.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.AppendLogEntries(ctx, entries)
			return err
		})
		return stored, err
	}

	stored := make([]audit.LogEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := s.conn(ctx).ExecContext(ctx, `
			INSERT INTO pricing_log_entries
				(id, tenant_id, catalog_version_id, change_type, field_name, old_value, new_value, reason, updated_at, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.ID, e.TenantID, e.CatalogVersionID, string(e.ChangeType), e.FieldName, e.OldValue, e.NewValue, e.Reason,
			e.UpdatedAt.UTC(), e.UpdatedBy)
		if err != nil {
			return nil, errors.Store("failed to append log entry", err)
		}
		stored[i] = e
	}
	return stored, nil
}

// ListLogEntries implements db.LogStore
func (s *Store) ListLogEntries(ctx context.Context, tenantID string, page db.Page) ([]audit.LogEntry, error) {
	page = page.Normalize()
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, tenant_id, catalog_version_id, change_type, field_name, old_value, new_value, reason, updated_at, updated_by
		FROM pricing_log_entries
		WHERE tenant_id = $1
		ORDER BY updated_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.Store("failed to list log entries", err)
	}
	defer rows.Close()

	out := make([]audit.LogEntry, 0)
	for rows.Next() {
		var (
			e          audit.LogEntry
			changeType string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CatalogVersionID, &changeType, &e.FieldName, &e.OldValue,
			&e.NewValue, &e.Reason, &e.UpdatedAt, &e.UpdatedBy); err != nil {
			return nil, errors.Store("failed to scan log entry", err)
		}
		e.ChangeType = catalog.ChangeType(changeType)
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, errors.Store("failed to list log entries", rows.Err())
}

// AppendRun implements db.LogStore
func (s *Store) AppendRun(ctx context.Context, run *audit.Run) error {
	if err := audit.ValidateSteps(run.Steps); err != nil {
		return errors.Validationf("invalid calculation run: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		return errors.Validationf("run id must be a UUID: %v", err)
	}

	hash := run.ContentHash
	if hash == "" {
		h, err := audit.HashSteps(run.Steps)
		if err != nil {
			return errors.Internal("failed to hash calculation run", err)
		}
		hash = h.Hex()
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return errors.Internal("failed to encode steps", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO pricing_calculation_runs (id, tenant_id, actor_id, catalog_version_id, steps, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.TenantID, run.ActorID, run.CatalogVersionID, steps, hash, run.CreatedAt.UTC())
	if err != nil {
		return errors.Store("failed to append calculation run", err)
	}
	run.ContentHash = hash
	return nil
}

// GetRun implements db.LogStore
func (s *Store) GetRun(ctx context.Context, runID string) (*audit.Run, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, errors.NotFound("calculation run", runID)
	}
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, tenant_id, actor_id, catalog_version_id, steps, content_hash, created_at
		FROM pricing_calculation_runs
		WHERE id = $1
	`, runID)

	var (
		run      audit.Run
		stepsRaw []byte
	)
	err := row.Scan(&run.ID, &run.TenantID, &run.ActorID, &run.CatalogVersionID, &stepsRaw, &run.ContentHash, &run.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("calculation run", runID)
	}
	if err != nil {
		return nil, errors.Store("failed to load calculation run", err)
	}
	if err := json.Unmarshal(stepsRaw, &run.Steps); err != nil {
		return nil, errors.Integrity("stored steps are not decodable").WithContext("run_id", runID)
	}
	run.CreatedAt = run.CreatedAt.UTC()
	if err := run.Verify(); err != nil {
		return nil, errors.Integrity(err.Error()).WithContext("run_id", runID)
	}
	return &run, nil
}
