package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

var catalogCols = []string{
	"id", "tenant_id", "version", "currency", "service_rates", "labor_rate", "parts_markup",
	"urgency_multipliers", "discounts", "updated_at", "updated_by",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return New(conn), mock
}

func discountsJSON(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(discount.DefaultSet())
	require.NoError(t, err)
	return raw
}

func TestApplyExecutesAllMigrations(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer conn.Close()

	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), conn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(".*").WillReturnError(fmt.Errorf("permission denied"))

	err = Apply(context.Background(), conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")
}

func TestGetCurrentCatalog(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	mock.ExpectQuery("FROM pricing_catalog_versions").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows(catalogCols).AddRow(
			id, "tenant-a", 3, "USD", []byte(`{"oil_change":"50"}`), "90", "1.15",
			[]byte(`{"standard":"1","emergency":"1.5"}`), discountsJSON(t), at, "user-1",
		))

	cat, err := store.GetCurrentCatalog(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, id, cat.ID)
	assert.Equal(t, 3, cat.Version)
	assert.True(t, cat.ServiceRates["oil_change"].Equal(decimal.NewFromInt(50)))
	assert.True(t, cat.PartsMarkup.Equal(decimal.RequireFromString("1.15")))
	m, ok := cat.Multiplier(catalog.UrgencyEmergency)
	require.True(t, ok)
	assert.True(t, m.Equal(decimal.RequireFromString("1.5")))
	assert.Len(t, cat.Discounts, 3)
	assert.False(t, cat.IsDefault)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentCatalogNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM pricing_catalog_versions").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows(catalogCols))

	_, err := store.GetCurrentCatalog(context.Background(), "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeNotFound), "got %v", err)
}

func TestGetCurrentCatalogStoreFailure(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM pricing_catalog_versions").WillReturnError(fmt.Errorf("connection refused"))

	_, err := store.GetCurrentCatalog(context.Background(), "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeStore), "got %v", err)
}

func TestInsertCatalogVersionLocksAndNumbers(t *testing.T) {
	store, mock := newMock(t)
	draft := catalog.Default("tenant-a").NextDraft("tenant-a", "user-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("tenant-a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("COALESCE\\(MAX\\(version\\), 0\\) \\+ 1").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec("INSERT INTO pricing_catalog_versions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, err := store.InsertCatalogVersion(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Version)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.IsDefault)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pricing_log_entries").WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := store.LockTenant(ctx, "tenant-a"); err != nil {
			return err
		}
		_, err := store.AppendLogEntries(ctx, []audit.LogEntry{{TenantID: "tenant-a", CatalogVersionID: uuid.NewString()}})
		return err
	})
	assert.True(t, errors.IsType(err, errors.TypeStore), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTenantRequiresTransaction(t *testing.T) {
	store, _ := newMock(t)
	err := store.LockTenant(context.Background(), "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeInternal))
}

func TestListLogEntries(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM pricing_log_entries").
		WithArgs("tenant-a", db.DefaultPageLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "catalog_version_id", "change_type", "field_name", "old_value", "new_value", "reason", "updated_at", "updated_by",
		}).
			AddRow("e2", "tenant-a", "v2", "labor_rate", "laborRate", "90", "95", "", at.Add(time.Minute), "user-1").
			AddRow("e1", "tenant-a", "v1", "service_rate", "serviceBaseRates.oil_change", "50", "55", "", at, "user-1"))

	entries, err := store.ListLogEntries(context.Background(), "tenant-a", db.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, catalog.ChangeLaborRate, entries[0].ChangeType)
	assert.Equal(t, "serviceBaseRates.oil_change", entries[1].FieldName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func frozenSteps() []audit.Step {
	out := make([]audit.Step, 0, len(audit.StageOrder))
	for i, stage := range audit.StageOrder {
		out = append(out, audit.Step{Sequence: i + 1, Stage: stage, Data: json.RawMessage(`{"ok":true}`)})
	}
	return out
}

func TestGetRunVerifiesHash(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.NewString()
	steps := frozenSteps()
	raw, err := json.Marshal(steps)
	require.NoError(t, err)
	hash, err := audit.HashSteps(steps)
	require.NoError(t, err)
	cols := []string{"id", "tenant_id", "actor_id", "catalog_version_id", "steps", "content_hash", "created_at"}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM pricing_calculation_runs").WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id, "tenant-a", "user-1", "", raw, hash.Hex(), at))
	run, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, run.Steps, 4)

	mock.ExpectQuery("FROM pricing_calculation_runs").WithArgs(id).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id, "tenant-a", "user-1", "", raw, "deadbeef", at))
	_, err = store.GetRun(context.Background(), id)
	assert.True(t, errors.IsType(err, errors.TypeIntegrity), "got %v", err)

	_, err = store.GetRun(context.Background(), "not-a-uuid")
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRunValidatesSteps(t *testing.T) {
	store, mock := newMock(t)

	err := store.AppendRun(context.Background(), &audit.Run{ID: uuid.NewString(), Steps: frozenSteps()[:2]})
	assert.True(t, errors.IsType(err, errors.TypeValidation))

	mock.ExpectExec("INSERT INTO pricing_calculation_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	run := &audit.Run{ID: uuid.NewString(), TenantID: "tenant-a", Steps: frozenSteps()}
	require.NoError(t, store.AppendRun(context.Background(), run))
	assert.NotEmpty(t, run.ContentHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	tenant := "it-" + uuid.NewString()
	draft := catalog.Default(tenant).NextDraft(tenant, "user-1", time.Now().UTC())

	var stored *catalog.RateCatalog
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if stored, err = store.InsertCatalogVersion(ctx, draft); err != nil {
			return err
		}
		_, err = store.AppendLogEntries(ctx, []audit.LogEntry{{
			TenantID: tenant, CatalogVersionID: stored.ID, ChangeType: catalog.ChangeLaborRate,
			FieldName: "laborRate", OldValue: "90", NewValue: "95", UpdatedAt: time.Now().UTC(), UpdatedBy: "user-1",
		}})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	current, err := store.GetCurrentCatalog(ctx, tenant)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current.ID != stored.ID || current.Version != 1 {
		t.Fatalf("unexpected current catalog %s v%d", current.ID, current.Version)
	}

	run := &audit.Run{ID: uuid.NewString(), TenantID: tenant, ActorID: "user-1", Steps: frozenSteps(), CreatedAt: time.Now().UTC()}
	if err := store.AppendRun(ctx, run); err != nil {
		t.Fatalf("append run: %v", err)
	}
	if _, err := store.GetRun(ctx, run.ID); err != nil {
		t.Fatalf("get run: %v", err)
	}

	_, err = store.db.ExecContext(ctx, `DELETE FROM pricing_calculation_runs WHERE id = $1`, run.ID)
	if err == nil {
		t.Fatal("expected append-only trigger to reject delete")
	}
}
