package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are idempotent and applied in order on every start.
// Audit tables reject UPDATE and DELETE at the database level.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS pricing_catalog_versions (
		id                  UUID PRIMARY KEY,
		tenant_id           TEXT NOT NULL,
		version             INTEGER NOT NULL,
		currency            TEXT NOT NULL,
		service_rates       JSONB NOT NULL,
		labor_rate          NUMERIC NOT NULL,
		parts_markup        NUMERIC NOT NULL,
		urgency_multipliers JSONB NOT NULL,
		discounts           JSONB NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		updated_by          TEXT NOT NULL,
		UNIQUE (tenant_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS pricing_log_entries (
		seq                BIGSERIAL PRIMARY KEY,
		id                 UUID NOT NULL UNIQUE,
		tenant_id          TEXT NOT NULL,
		catalog_version_id UUID NOT NULL REFERENCES pricing_catalog_versions (id),
		change_type        TEXT NOT NULL,
		field_name         TEXT NOT NULL,
		old_value          TEXT NOT NULL DEFAULT '',
		new_value          TEXT NOT NULL DEFAULT '',
		reason             TEXT NOT NULL DEFAULT '',
		updated_at         TIMESTAMPTZ NOT NULL,
		updated_by         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pricing_log_entries_tenant_idx
		ON pricing_log_entries (tenant_id, updated_at DESC, seq DESC)`,
	// steps is JSON, not JSONB: the stored text must hash identically on read
	`CREATE TABLE IF NOT EXISTS pricing_calculation_runs (
		id                 UUID PRIMARY KEY,
		tenant_id          TEXT NOT NULL,
		actor_id           TEXT NOT NULL,
		catalog_version_id TEXT NOT NULL DEFAULT '',
		steps              JSON NOT NULL,
		content_hash       TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pricing_calculation_runs_tenant_idx
		ON pricing_calculation_runs (tenant_id, created_at DESC)`,
	`CREATE OR REPLACE FUNCTION pricing_reject_mutation() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS pricing_catalog_versions_append_only ON pricing_catalog_versions`,
	`CREATE TRIGGER pricing_catalog_versions_append_only
		BEFORE UPDATE OR DELETE ON pricing_catalog_versions
		FOR EACH ROW EXECUTE FUNCTION pricing_reject_mutation()`,
	`DROP TRIGGER IF EXISTS pricing_log_entries_append_only ON pricing_log_entries`,
	`CREATE TRIGGER pricing_log_entries_append_only
		BEFORE UPDATE OR DELETE ON pricing_log_entries
		FOR EACH ROW EXECUTE FUNCTION pricing_reject_mutation()`,
	`DROP TRIGGER IF EXISTS pricing_calculation_runs_append_only ON pricing_calculation_runs`,
	`CREATE TRIGGER pricing_calculation_runs_append_only
		BEFORE UPDATE OR DELETE ON pricing_calculation_runs
		FOR EACH ROW EXECUTE FUNCTION pricing_reject_mutation()`,
}

// Apply runs every migration against db
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
