// Package memory is an in-process implementation of db.Store.
//
// Catalog versions, change-log entries and calculation runs are append-only.
// Runs are write-once and content-hashed; every read re-verifies the hash.
// Transactions buffer writes and apply them under the store lock on commit,
// so a failed transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

// ErrRunExists is returned when a run ID is recorded twice
var ErrRunExists = fmt.Errorf("calculation run already recorded")

// Store keeps everything in maps guarded by one lock
type Store struct {
	mu sync.RWMutex

	// txMu serializes transactions, the in-process analogue of a
	// per-tenant advisory lock
	txMu sync.Mutex

	catalogs map[string][]*catalog.RateCatalog
	entries  map[string][]audit.LogEntry
	runs     map[string]*audit.Run

	errMu sync.Mutex
	errs  map[string]error

	closed bool
}

var _ db.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		catalogs: make(map[string][]*catalog.RateCatalog),
		entries:  make(map[string][]audit.LogEntry),
		runs:     make(map[string]*audit.Run),
		errs:     make(map[string]error),
	}
}

// FailNext makes the next call of operation op return err. Operation names
// are the method names, e.g. "AppendLogEntries".
func (s *Store) FailNext(op string, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs[op] = err
}

func (s *Store) takeErr(op string) error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.errs[op]
	delete(s.errs, op)
	return err
}

// pending holds the writes of an open transaction
type pending struct {
	catalogs map[string][]*catalog.RateCatalog
	entries  map[string][]audit.LogEntry
	runs     map[string]*audit.Run
	order    []string
}

type txKey struct{}

func txFrom(ctx context.Context) *pending {
	tx, _ := ctx.Value(txKey{}).(*pending)
	return tx
}

// RunInTx implements db.TxManager
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		// already inside a transaction; join it
		return fn(ctx)
	}
	if err := s.takeErr("RunInTx"); err != nil {
		return errors.Store("failed to begin transaction", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &pending{
		catalogs: make(map[string][]*catalog.RateCatalog),
		entries:  make(map[string][]audit.LogEntry),
		runs:     make(map[string]*audit.Run),
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := s.takeErr("Commit"); err != nil {
		return errors.Store("failed to commit transaction", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, cats := range tx.catalogs {
		s.catalogs[tenantID] = append(s.catalogs[tenantID], cats...)
	}
	for tenantID, entries := range tx.entries {
		s.entries[tenantID] = append(s.entries[tenantID], entries...)
	}
	for _, id := range tx.order {
		s.runs[id] = tx.runs[id]
	}
	return nil
}

// GetCurrentCatalog implements db.SettingsStore
func (s *Store) GetCurrentCatalog(ctx context.Context, tenantID string) (*catalog.RateCatalog, error) {
	if err := s.takeErr("GetCurrentCatalog"); err != nil {
		return nil, errors.Store("failed to load current catalog", err)
	}
	versions := s.versions(ctx, tenantID)
	if len(versions) == 0 {
		return nil, errors.NotFound("catalog", tenantID)
	}
	return versions[len(versions)-1].Clone(), nil
}

// GetCatalogByID implements db.SettingsStore
func (s *Store) GetCatalogByID(ctx context.Context, tenantID, versionID string) (*catalog.RateCatalog, error) {
	if err := s.takeErr("GetCatalogByID"); err != nil {
		return nil, errors.Store("failed to load catalog version", err)
	}
	for _, cat := range s.versions(ctx, tenantID) {
		if cat.ID == versionID {
			return cat.Clone(), nil
		}
	}
	return nil, errors.NotFound("catalog version", versionID)
}

// GetCatalogAt implements db.SettingsStore
func (s *Store) GetCatalogAt(ctx context.Context, tenantID string, at time.Time) (*catalog.RateCatalog, error) {
	if err := s.takeErr("GetCatalogAt"); err != nil {
		return nil, errors.Store("failed to load catalog version", err)
	}
	versions := s.versions(ctx, tenantID)
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].UpdatedAt.After(at) {
			return versions[i].Clone(), nil
		}
	}
	return nil, errors.NotFound("catalog", fmt.Sprintf("%s at %s", tenantID, at.Format(time.RFC3339)))
}

// ListCatalogVersions implements db.SettingsStore
func (s *Store) ListCatalogVersions(ctx context.Context, tenantID string, page db.Page) ([]*catalog.RateCatalog, error) {
	if err := s.takeErr("ListCatalogVersions"); err != nil {
		return nil, errors.Store("failed to list catalog versions", err)
	}
	versions := s.versions(ctx, tenantID)
	out := make([]*catalog.RateCatalog, 0)
	for _, i := range newestFirst(len(versions), page) {
		out = append(out, versions[i].Clone())
	}
	return out, nil
}

// LockTenant implements db.SettingsStore. Transactions are already
// serialized store-wide, so there is nothing more to lock.
func (s *Store) LockTenant(ctx context.Context, tenantID string) error {
	if txFrom(ctx) == nil {
		return errors.Internal("LockTenant called outside a transaction", nil)
	}
	return errors.Store("failed to lock tenant", s.takeErr("LockTenant"))
}

// InsertCatalogVersion implements db.SettingsStore
func (s *Store) InsertCatalogVersion(ctx context.Context, cat *catalog.RateCatalog) (*catalog.RateCatalog, error) {
	tx := txFrom(ctx)
	if tx == nil {
		var stored *catalog.RateCatalog
		err := s.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.InsertCatalogVersion(ctx, cat)
			return err
		})
		return stored, err
	}
	if err := s.takeErr("InsertCatalogVersion"); err != nil {
		return nil, errors.Store("failed to insert catalog version", err)
	}
	if cat.TenantID == "" {
		return nil, errors.Validation("catalog tenant id is required")
	}

	stored := cat.Clone()
	stored.ID = uuid.NewString()
	stored.Version = len(s.versions(ctx, cat.TenantID)) + 1
	stored.IsDefault = false
	tx.catalogs[cat.TenantID] = append(tx.catalogs[cat.TenantID], stored)
	return stored.Clone(), nil
}

// AppendLogEntries implements db.LogStore
func (s *Store) AppendLogEntries(ctx context.Context, entries []audit.LogEntry) ([]audit.LogEntry, error) {
	tx := txFrom(ctx)
	if tx == nil {
		var stored []audit.LogEntry
		err := s.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.AppendLogEntries(ctx, entries)
			return err
		})
		return stored, err
	}
	if err := s.takeErr("AppendLogEntries"); err != nil {
		return nil, errors.Store("failed to append log entries", err)
	}

	stored := make([]audit.LogEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		stored[i] = e
		tx.entries[e.TenantID] = append(tx.entries[e.TenantID], e)
	}
	return stored, nil
}

// ListLogEntries implements db.LogStore. Entries come back in reverse
// commit order, which is newest first.
func (s *Store) ListLogEntries(ctx context.Context, tenantID string, page db.Page) ([]audit.LogEntry, error) {
	if err := s.takeErr("ListLogEntries"); err != nil {
		return nil, errors.Store("failed to list log entries", err)
	}
	s.mu.RLock()
	all := s.entries[tenantID]
	s.mu.RUnlock()

	out := make([]audit.LogEntry, 0)
	for _, i := range newestFirst(len(all), page) {
		out = append(out, all[i])
	}
	return out, nil
}

// AppendRun implements db.LogStore. A run ID can be recorded only once.
func (s *Store) AppendRun(ctx context.Context, run *audit.Run) error {
	tx := txFrom(ctx)
	if tx == nil {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			return s.AppendRun(ctx, run)
		})
	}
	if err := s.takeErr("AppendRun"); err != nil {
		return errors.Store("failed to append calculation run", err)
	}
	if err := audit.ValidateSteps(run.Steps); err != nil {
		return errors.Validationf("invalid calculation run: %v", err)
	}

	s.mu.RLock()
	_, exists := s.runs[run.ID]
	s.mu.RUnlock()
	if _, queued := tx.runs[run.ID]; exists || queued {
		return errors.Store(fmt.Sprintf("run %s", run.ID), ErrRunExists)
	}

	stored := *run
	stored.Steps = audit.CloneSteps(run.Steps)
	if stored.ContentHash == "" {
		hash, err := audit.HashSteps(stored.Steps)
		if err != nil {
			return errors.Internal("failed to hash calculation run", err)
		}
		stored.ContentHash = hash.Hex()
	}
	tx.runs[run.ID] = &stored
	tx.order = append(tx.order, run.ID)
	return nil
}

// GetRun implements db.LogStore
func (s *Store) GetRun(ctx context.Context, runID string) (*audit.Run, error) {
	if err := s.takeErr("GetRun"); err != nil {
		return nil, errors.Store("failed to load calculation run", err)
	}
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("calculation run", runID)
	}

	out := *run
	out.Steps = audit.CloneSteps(run.Steps)
	if err := out.Verify(); err != nil {
		return nil, errors.Integrity(err.Error()).WithContext("run_id", runID)
	}
	return &out, nil
}

// Ping implements db.Store
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Store("ping", fmt.Errorf("store is closed"))
	}
	return nil
}

// Close implements db.Store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// versions returns committed versions of tenantID followed by any the
// current transaction has queued
func (s *Store) versions(ctx context.Context, tenantID string) []*catalog.RateCatalog {
	s.mu.RLock()
	committed := s.catalogs[tenantID]
	out := make([]*catalog.RateCatalog, len(committed))
	copy(out, committed)
	s.mu.RUnlock()

	if tx := txFrom(ctx); tx != nil {
		out = append(out, tx.catalogs[tenantID]...)
	}
	return out
}

// newestFirst returns the indexes of a page over n items, last item first
func newestFirst(n int, page db.Page) []int {
	page = page.Normalize()
	var idx []int
	for i := n - 1 - page.Offset; i >= 0 && len(idx) < page.Limit; i-- {
		idx = append(idx, i)
	}
	return idx
}
