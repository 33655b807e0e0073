package iap

import (
	"fmt"
	"sync"
	"time"

	"iap-coordinator/internal/cache"
	"iap-coordinator/internal/dispatch"
	"iap-coordinator/internal/model"
)

// LoadCompletion receives the result of a catalog load.
type LoadCompletion func(products []model.Product, err error)

// PurchaseCompletion receives the result of a purchase.
type PurchaseCompletion func(err error)

// RestoreCompletion receives the result of a restore.
type RestoreCompletion func(err error)

// CatalogRequest is a load request split against the product cache.
type CatalogRequest struct {
	// Order is the requested identifiers with duplicates removed.
	Order []string
	// Cached are the products already resolved, in request order.
	Cached []model.Product
	// Missing are the identifiers that need a catalog fetch.
	Missing []string
}

type pendingLoad struct {
	req     CatalogRequest
	done    LoadCompletion
	created time.Time
}

// PendingPurchase is one outstanding purchase attempt.
type PendingPurchase struct {
	ProductID string
	Created   time.Time
	done      PurchaseCompletion
}

// Ledger tracks in-flight catalog loads, purchases and the restore
// callback, and resolves each of them exactly once. Callbacks run on the
// executor after the ledger lock is released.
type Ledger struct {
	mu        sync.Mutex
	products  cache.ProductCache
	loads     map[string]*pendingLoad
	purchases []*PendingPurchase
	restore   RestoreCompletion

	exec dispatch.Executor
	now  func() time.Time
}

// NewLedger creates a ledger over a product cache.
func NewLedger(products cache.ProductCache, exec dispatch.Executor) *Ledger {
	if exec == nil {
		exec = dispatch.Immediate{}
	}
	return &Ledger{
		products: products,
		loads:    make(map[string]*pendingLoad),
		exec:     exec,
		now:      time.Now,
	}
}

// Partition splits ids into cache hits and identifiers to fetch.
// It has no side effects.
func (l *Ledger) Partition(ids []string) CatalogRequest {
	var req CatalogRequest
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		req.Order = append(req.Order, id)

		if p, ok := l.products.Get(id); ok {
			req.Cached = append(req.Cached, p)
		} else {
			req.Missing = append(req.Missing, id)
		}
	}
	return req
}

// RegisterLoad records a pending catalog load under handle.
func (l *Ledger) RegisterLoad(handle string, req CatalogRequest, done LoadCompletion) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.loads[handle]; exists {
		return fmt.Errorf("catalog handle %s is already pending", handle)
	}
	l.loads[handle] = &pendingLoad{req: req, done: done, created: l.now()}
	return nil
}

// ResolveLoad completes the load registered under handle. Fetched products
// are merged into the cache and returned together with the cached ones in
// request order. It reports false, doing nothing, for an unknown handle.
func (l *Ledger) ResolveLoad(handle string, fetched []model.Product, err error) bool {
	l.mu.Lock()
	pl, ok := l.loads[handle]
	if ok {
		delete(l.loads, handle)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}

	if err != nil {
		l.exec.Execute(func() { pl.done(nil, err) })
		return true
	}

	l.products.Put(fetched...)
	products := mergeProducts(pl.req, fetched)
	l.exec.Execute(func() { pl.done(products, nil) })
	return true
}

// mergeProducts orders cached and fetched products by the request order.
// Products the catalog returned without being asked are appended.
func mergeProducts(req CatalogRequest, fetched []model.Product) []model.Product {
	byID := make(map[string]model.Product, len(req.Cached)+len(fetched))
	for _, p := range req.Cached {
		byID[p.ID] = p
	}
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]model.Product, 0, len(byID))
	for _, id := range req.Order {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	for _, p := range fetched {
		if _, ok := byID[p.ID]; ok {
			out = append(out, p)
			delete(byID, p.ID)
		}
	}
	return out
}

// RegisterPurchase appends a pending purchase for productID.
func (l *Ledger) RegisterPurchase(productID string, done PurchaseCompletion) *PendingPurchase {
	p := &PendingPurchase{ProductID: productID, Created: l.now(), done: done}

	l.mu.Lock()
	l.purchases = append(l.purchases, p)
	l.mu.Unlock()
	return p
}

// ResolvePurchase completes the oldest pending purchase for productID.
// It reports false when none is pending.
func (l *Ledger) ResolvePurchase(productID string, err error) bool {
	l.mu.Lock()
	var found *PendingPurchase
	for i, p := range l.purchases {
		if p.ProductID == productID {
			found = p
			l.purchases = append(l.purchases[:i], l.purchases[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	if found == nil {
		return false
	}
	l.exec.Execute(func() { found.done(err) })
	return true
}

// AbandonPurchase completes one specific pending purchase with err, if it
// is still pending.
func (l *Ledger) AbandonPurchase(target *PendingPurchase, err error) bool {
	l.mu.Lock()
	found := false
	for i, p := range l.purchases {
		if p == target {
			found = true
			l.purchases = append(l.purchases[:i], l.purchases[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	if !found {
		return false
	}
	l.exec.Execute(func() { target.done(err) })
	return true
}

// ExpirePurchases completes every pending purchase registered more than
// maxAge ago with ErrPurchaseExpired and returns how many it expired.
func (l *Ledger) ExpirePurchases(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge)

	l.mu.Lock()
	var expired []*PendingPurchase
	kept := l.purchases[:0]
	for _, p := range l.purchases {
		if p.Created.Before(cutoff) {
			expired = append(expired, p)
		} else {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(l.purchases); i++ {
		l.purchases[i] = nil
	}
	l.purchases = kept
	l.mu.Unlock()

	for _, p := range expired {
		p := p
		err := &Error{Kind: ErrPurchaseExpired, ProductID: p.ProductID}
		l.exec.Execute(func() { p.done(err) })
	}
	return len(expired)
}

// SetRestore installs the restore callback. A callback it replaces is
// completed with ErrRestoreSuperseded. It reports whether one was replaced.
func (l *Ledger) SetRestore(done RestoreCompletion) bool {
	l.mu.Lock()
	prev := l.restore
	l.restore = done
	l.mu.Unlock()

	if prev == nil {
		return false
	}
	l.exec.Execute(func() { prev(&Error{Kind: ErrRestoreSuperseded}) })
	return true
}

// ResolveRestore completes the outstanding restore callback. It reports
// false when none is outstanding.
func (l *Ledger) ResolveRestore(err error) bool {
	l.mu.Lock()
	done := l.restore
	l.restore = nil
	l.mu.Unlock()

	if done == nil {
		return false
	}
	l.exec.Execute(func() { done(err) })
	return true
}

// LedgerStats is a point-in-time view of the ledger.
type LedgerStats struct {
	PendingLoads     int            `json:"pending_loads"`
	PendingPurchases int            `json:"pending_purchases"`
	PurchasesByID    map[string]int `json:"purchases_by_product,omitempty"`
	RestorePending   bool           `json:"restore_pending"`
	CachedProducts   int            `json:"cached_products"`
}

// Stats returns counts of pending work.
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LedgerStats{
		PendingLoads:     len(l.loads),
		PendingPurchases: len(l.purchases),
		RestorePending:   l.restore != nil,
		CachedProducts:   l.products.Len(),
	}
	if len(l.purchases) > 0 {
		stats.PurchasesByID = make(map[string]int)
		for _, p := range l.purchases {
			stats.PurchasesByID[p.ProductID]++
		}
	}
	return stats
}
