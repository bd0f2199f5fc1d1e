package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
)

// RunStore is the persistence a Writer needs
type RunStore interface {
	AppendRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
}

// Writer persists calculation runs and reads them back tenant-scoped
type Writer struct {
	store RunStore
	now   func() time.Time
	log   *zap.Logger
}

// NewWriter creates a writer over store
func NewWriter(store RunStore) *Writer {
	return &Writer{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logging.Named("audit"),
	}
}

// WithClock replaces the writer's clock
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Record validates, hashes and appends steps as a new run. The steps are
// copied; later changes by the caller do not reach the stored run.
func (w *Writer) Record(ctx context.Context, tenantID, actorID, catalogVersionID string, steps []Step) (*Run, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, errors.Validationf("invalid calculation steps: %v", err)
	}
	hash, err := HashSteps(steps)
	if err != nil {
		return nil, errors.Internal("failed to hash calculation steps", err)
	}

	run := &Run{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		ActorID:          actorID,
		CatalogVersionID: catalogVersionID,
		Steps:            CloneSteps(steps),
		ContentHash:      hash.Hex(),
		CreatedAt:        w.now(),
	}
	if err := w.store.AppendRun(ctx, run); err != nil {
		return nil, err
	}

	w.log.Debug("recorded calculation run",
		logging.Tenant(tenantID),
		logging.Actor(actorID),
		zap.String("run_id", run.ID),
		zap.String("content_hash", run.ContentHash),
	)
	return run, nil
}

// Steps returns the stored steps of runID exactly as recorded. Runs of other
// tenants are reported as not found.
func (w *Writer) Steps(ctx context.Context, tenantID, runID string) (*Run, error) {
	run, err := w.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.TenantID != tenantID {
		return nil, errors.NotFound("calculation run", runID)
	}
	return run, nil
}
