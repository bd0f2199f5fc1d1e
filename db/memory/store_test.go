package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

func draft(tenantID string, oil string) *catalog.RateCatalog {
	c := catalog.Default(tenantID).NextDraft(tenantID, "user-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.ServiceRates["oil_change"] = decimal.RequireFromString(oil)
	return c
}

func steps() []audit.Step {
	out := make([]audit.Step, 0, len(audit.StageOrder))
	for i, stage := range audit.StageOrder {
		out = append(out, audit.Step{Sequence: i + 1, Stage: stage, Data: json.RawMessage(`{}`)})
	}
	return out
}

func TestCurrentCatalogNotFoundBeforeFirstSave(t *testing.T) {
	s := New()
	_, err := s.GetCurrentCatalog(context.Background(), "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeNotFound), "got %v", err)
}

func TestInsertAssignsVersionsAndIsReadBack(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "50"))
	require.NoError(t, err)
	second, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "55"))
	require.NoError(t, err)
	other, err := s.InsertCatalogVersion(ctx, draft("tenant-b", "70"))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, other.Version)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	current, err := s.GetCurrentCatalog(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.True(t, current.ServiceRates["oil_change"].Equal(decimal.NewFromInt(55)))

	old, err := s.GetCatalogByID(ctx, "tenant-a", first.ID)
	require.NoError(t, err)
	assert.True(t, old.ServiceRates["oil_change"].Equal(decimal.NewFromInt(50)))

	_, err = s.GetCatalogByID(ctx, "tenant-b", first.ID)
	assert.True(t, errors.IsType(err, errors.TypeNotFound), "versions must not leak across tenants")

	versions, err := s.ListCatalogVersions(ctx, "tenant-a", db.Page{})
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
}

func TestReturnedCatalogsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "50"))
	require.NoError(t, err)

	got, err := s.GetCurrentCatalog(ctx, "tenant-a")
	require.NoError(t, err)
	got.ServiceRates["oil_change"] = decimal.NewFromInt(1)

	again, err := s.GetCurrentCatalog(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, again.ServiceRates["oil_change"].Equal(decimal.NewFromInt(50)))
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "60")); err != nil {
			return err
		}
		_, err := s.AppendLogEntries(ctx, []audit.LogEntry{{TenantID: "tenant-a", FieldName: "laborRate"}})
		return err
	})
	require.NoError(t, err)

	s.FailNext("AppendLogEntries", fmt.Errorf("disk full"))
	err = s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "99")); err != nil {
			return err
		}
		_, err := s.AppendLogEntries(ctx, []audit.LogEntry{{TenantID: "tenant-a", FieldName: "partsMarkup"}})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeStore))

	current, err := s.GetCurrentCatalog(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Version)
	assert.True(t, current.ServiceRates["oil_change"].Equal(decimal.NewFromInt(60)))

	entries, err := s.ListLogEntries(ctx, "tenant-a", db.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "laborRate", entries[0].FieldName)
}

func TestReadsInsideTransactionSeePendingVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		stored, err := s.InsertCatalogVersion(ctx, draft("tenant-a", "60"))
		require.NoError(t, err)

		inside, err := s.GetCurrentCatalog(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, inside.ID)

		_, err = s.GetCurrentCatalog(context.Background(), "tenant-a")
		assert.True(t, errors.IsType(err, errors.TypeNotFound), "uncommitted version visible outside the transaction")
		return nil
	})
	require.NoError(t, err)
}

func TestConcurrentInsertsGetDistinctVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertCatalogVersion(ctx, draft("tenant-a", fmt.Sprintf("%d", 50+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := s.ListCatalogVersions(ctx, "tenant-a", db.Page{Limit: 100})
	require.NoError(t, err)
	require.Len(t, versions, 20)
	seen := make(map[int]bool)
	for _, v := range versions {
		assert.False(t, seen[v.Version], "duplicate version %d", v.Version)
		seen[v.Version] = true
	}
}

func TestLogEntriesNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		_, err := s.AppendLogEntries(ctx, []audit.LogEntry{{TenantID: "tenant-a", FieldName: fmt.Sprintf("f%d", i)}})
		require.NoError(t, err)
	}

	page, err := s.ListLogEntries(ctx, "tenant-a", db.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "f3", page[0].FieldName)
	assert.Equal(t, "f2", page[1].FieldName)
	assert.NotEmpty(t, page[0].ID)

	none, err := s.ListLogEntries(ctx, "tenant-b", db.Page{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunsAreWriteOnceAndFrozen(t *testing.T) {
	ctx := context.Background()
	s := New()

	run := &audit.Run{ID: "run-1", TenantID: "tenant-a", Steps: steps()}
	require.NoError(t, s.AppendRun(ctx, run))

	// mutating the caller's copy must not reach the stored run
	run.Steps[0].Title = "changed"

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "", got.Steps[0].Title)
	assert.NotEmpty(t, got.ContentHash)

	err = s.AppendRun(ctx, &audit.Run{ID: "run-1", TenantID: "tenant-a", Steps: steps()})
	assert.ErrorIs(t, err, ErrRunExists)

	_, err = s.GetRun(ctx, "missing")
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestTamperedRunFailsVerification(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendRun(ctx, &audit.Run{ID: "run-1", TenantID: "tenant-a", Steps: steps()}))

	s.mu.Lock()
	s.runs["run-1"].Steps[3].Description = "rewritten"
	s.mu.Unlock()

	_, err := s.GetRun(ctx, "run-1")
	assert.True(t, errors.IsType(err, errors.TypeIntegrity), "got %v", err)
}

func TestInjectedErrorsAreOneShot(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailNext("GetCurrentCatalog", fmt.Errorf("connection reset"))

	_, err := s.GetCurrentCatalog(ctx, "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeStore))

	_, err = s.GetCurrentCatalog(ctx, "tenant-a")
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestPingAfterClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestGetCatalogAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	v1 := draft("tenant-a", "50")
	v1.UpdatedAt = jan
	_, err := s.InsertCatalogVersion(ctx, v1)
	require.NoError(t, err)
	v2 := draft("tenant-a", "55")
	v2.UpdatedAt = jan.AddDate(0, 1, 0)
	_, err = s.InsertCatalogVersion(ctx, v2)
	require.NoError(t, err)

	got, err := s.GetCatalogAt(ctx, "tenant-a", jan.AddDate(0, 0, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	got, err = s.GetCatalogAt(ctx, "tenant-a", jan.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	_, err = s.GetCatalogAt(ctx, "tenant-a", jan.AddDate(-1, 0, 0))
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}
