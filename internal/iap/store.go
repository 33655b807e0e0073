package iap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"

	"iap-coordinator/internal/repository"
)

// DefaultLocation is the storage location of the purchase record.
const DefaultLocation = "purchased.json"

// PurchaseStore is the in-memory set of purchased product identifiers,
// written through to a storage backend on every change.
type PurchaseStore struct {
	mu  sync.RWMutex
	ids map[string]struct{}

	// writeMu orders persists so an older snapshot never overwrites a newer one.
	writeMu  sync.Mutex
	backend  repository.Backend
	location string
}

// NewPurchaseStore creates an empty store. Call Load to read persisted state.
func NewPurchaseStore(backend repository.Backend, location string) *PurchaseStore {
	if location == "" {
		location = DefaultLocation
	}
	return &PurchaseStore{
		ids:      make(map[string]struct{}),
		backend:  backend,
		location: location,
	}
}

// Load replaces the in-memory set with the persisted one. Missing data and
// an unreadable record both yield an empty set; the returned error is only
// informational and wraps ErrLoadCorrupted.
func (s *PurchaseStore) Load(ctx context.Context) ([]string, error) {
	ids, loadErr := s.read(ctx)

	s.mu.Lock()
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()

	glog.Infof("[PurchaseStore] Loaded %d purchased products from %s", len(ids), s.location)
	return ids, loadErr
}

func (s *PurchaseStore) read(ctx context.Context) ([]string, error) {
	data, err := s.backend.Read(ctx, s.location)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		glog.Warningf("[PurchaseStore] Failed to read %s, starting empty: %v", s.location, err)
		return nil, &Error{Kind: ErrLoadCorrupted, Err: err}
	}

	ids, version, skipped, err := DecodeRecord(data)
	if err != nil {
		glog.Warningf("[PurchaseStore] Unreadable record in %s, starting empty: %v", s.location, err)
		return nil, &Error{Kind: ErrLoadCorrupted, Err: err}
	}
	if skipped > 0 {
		glog.V(1).Infof("[PurchaseStore] Skipped %d malformed entries in %s", skipped, s.location)
	}
	if version < RecordVersion {
		glog.Infof("[PurchaseStore] %s uses record version %d, will rewrite as %d on next save", s.location, version, RecordVersion)
	}
	return ids, nil
}

// IsPurchased reports whether productID is in the set.
func (s *PurchaseStore) IsPurchased(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[productID]
	return ok
}

// MarkPurchased adds productID and persists the set. Adding an identifier
// that is already present still persists.
func (s *PurchaseStore) MarkPurchased(ctx context.Context, productID string) error {
	s.mu.Lock()
	s.ids[productID] = struct{}{}
	s.mu.Unlock()

	return s.Persist(ctx)
}

// Revoke removes productIDs and persists the set.
func (s *PurchaseStore) Revoke(ctx context.Context, productIDs []string) error {
	s.mu.Lock()
	for _, id := range productIDs {
		delete(s.ids, id)
	}
	s.mu.Unlock()

	return s.Persist(ctx)
}

// Persist writes the full current set, replacing the stored record.
// Failures are logged and returned wrapped in ErrPersistFailed; the
// in-memory set is left unchanged.
func (s *PurchaseStore) Persist(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snapshot := s.Snapshot()
	data, err := EncodeRecord(snapshot)
	if err != nil {
		glog.Errorf("[PurchaseStore] Failed to encode purchases: %v", err)
		return &Error{Kind: ErrPersistFailed, Err: err}
	}

	if err := s.backend.Write(ctx, s.location, data); err != nil {
		glog.Errorf("[PurchaseStore] Failed to persist %d purchases to %s: %v", len(snapshot), s.location, err)
		return &Error{Kind: ErrPersistFailed, Err: fmt.Errorf("failed to write %s: %w", s.location, err)}
	}

	glog.V(2).Infof("[PurchaseStore] Persisted %d purchases to %s", len(snapshot), s.location)
	return nil
}

// Snapshot returns the purchased identifiers in sorted order.
func (s *PurchaseStore) Snapshot() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of purchased identifiers.
func (s *PurchaseStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Location returns the storage location of the record.
func (s *PurchaseStore) Location() string {
	return s.location
}
