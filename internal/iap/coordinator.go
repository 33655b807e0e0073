// Package iap coordinates in-app purchases between an application and a
// platform purchase service. It tracks pending catalog loads, purchases and
// restores, matches them with asynchronous platform events, and keeps a
// durable record of purchased products.
package iap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"iap-coordinator/internal/cache"
	"iap-coordinator/internal/dispatch"
	"iap-coordinator/internal/model"
	"iap-coordinator/pkg/uid"
)

// Config wires a Coordinator to its collaborators.
type Config struct {
	Payments PaymentQueue
	Catalog  Catalog
	// Events are subscribed when the coordinator is created.
	Events []EventSource
	// Reachability defaults to always reachable.
	Reachability Reachability
	Store        *PurchaseStore
	// Products defaults to an in-memory cache that never expires.
	Products cache.ProductCache
	// Executor runs every completion callback. Defaults to dispatch.Immediate.
	Executor dispatch.Executor
	// ShortCircuitOwned resolves purchases of owned products without
	// contacting the platform.
	ShortCircuitOwned bool
}

// Coordinator is the purchase coordinator. Create one per process with
// NewCoordinator; it is safe for concurrent use.
type Coordinator struct {
	payments     PaymentQueue
	catalog      Catalog
	events       []EventSource
	reachability Reachability
	store        *PurchaseStore
	ledger       *Ledger
	exec         dispatch.Executor

	shortCircuitOwned bool

	closeOnce sync.Once
	closeErr  error
}

// NewCoordinator loads persisted purchases and subscribes to the event
// sources. An unreadable purchase record is logged and treated as empty.
func NewCoordinator(ctx context.Context, cfg Config) (*Coordinator, error) {
	if cfg.Payments == nil {
		return nil, errors.New("payment queue is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("purchase store is required")
	}
	if cfg.Products == nil {
		cfg.Products = cache.NewMemoryCache(0, 0)
	}
	if cfg.Executor == nil {
		cfg.Executor = dispatch.Immediate{}
	}
	if cfg.Reachability == nil {
		cfg.Reachability = ReachabilityFunc(func(context.Context) bool { return true })
	}

	c := &Coordinator{
		payments:          cfg.Payments,
		catalog:           cfg.Catalog,
		reachability:      cfg.Reachability,
		store:             cfg.Store,
		ledger:            NewLedger(cfg.Products, cfg.Executor),
		exec:              cfg.Executor,
		shortCircuitOwned: cfg.ShortCircuitOwned,
	}

	if _, err := c.store.Load(ctx); err != nil {
		glog.Warningf("[Coordinator] Starting with no purchases: %v", err)
	}

	for _, src := range cfg.Events {
		if err := src.Subscribe(c); err != nil {
			for _, sub := range c.events {
				if uerr := sub.Unsubscribe(); uerr != nil {
					glog.Warningf("[Coordinator] Failed to unsubscribe: %v", uerr)
				}
			}
			return nil, fmt.Errorf("failed to subscribe to platform events: %w", err)
		}
		c.events = append(c.events, src)
	}

	glog.Infof("[Coordinator] Ready - purchased:%d, event sources:%d, short-circuit owned:%v",
		c.store.Len(), len(c.events), c.shortCircuitOwned)
	return c, nil
}

// CanMakePayments reports whether the platform accepts payments and the
// storefront is reachable.
func (c *Coordinator) CanMakePayments(ctx context.Context) bool {
	if !c.payments.CanAcceptPayments() {
		return false
	}
	return c.reachability.Reachable(ctx)
}

// IsProductPurchased reports whether productID is owned.
func (c *Coordinator) IsProductPurchased(productID string) bool {
	return c.store.IsPurchased(productID)
}

// PurchasedProductIDs returns the owned identifiers in sorted order.
func (c *Coordinator) PurchasedProductIDs() []string {
	return c.store.Snapshot()
}

// LoadProducts resolves products by identifier, serving cached products
// without contacting the catalog. done receives the products in request
// order; identifiers the catalog does not know are absent from the result.
func (c *Coordinator) LoadProducts(ctx context.Context, productIDs []string, done LoadCompletion) {
	req := c.ledger.Partition(productIDs)
	if len(req.Missing) == 0 {
		cached := req.Cached
		c.exec.Execute(func() { done(cached, nil) })
		return
	}

	handle := uid.Handle()
	if err := c.ledger.RegisterLoad(handle, req, done); err != nil {
		glog.Errorf("[Coordinator] %v", err)
		c.exec.Execute(func() { done(nil, &Error{Kind: ErrCatalogFetchFailed, Err: err}) })
		return
	}

	glog.V(2).Infof("[Coordinator] Fetching %d products (cached:%d) handle:%s", len(req.Missing), len(req.Cached), handle)
	if err := c.catalog.FetchProducts(ctx, handle, req.Missing); err != nil {
		glog.Warningf("[Coordinator] Catalog fetch %s failed: %v", handle, err)
		c.ledger.ResolveLoad(handle, nil, &Error{Kind: ErrCatalogFetchFailed, Err: err})
	}
}

// PurchaseProduct buys productID. The product is resolved through the
// catalog first, then submitted to the payment queue; done fires when the
// platform reports a terminal transaction state for it.
func (c *Coordinator) PurchaseProduct(ctx context.Context, productID string, done PurchaseCompletion) {
	if !ValidProductID(productID) {
		c.exec.Execute(func() { done(&Error{Kind: ErrUnknownProduct, ProductID: productID}) })
		return
	}
	if !c.CanMakePayments(ctx) {
		glog.V(1).Infof("[Coordinator] Purchase of %s rejected, payments unavailable", productID)
		c.exec.Execute(func() { done(&Error{Kind: ErrCapabilityUnavailable, ProductID: productID}) })
		return
	}
	if c.shortCircuitOwned && c.store.IsPurchased(productID) {
		glog.V(1).Infof("[Coordinator] %s already owned, not contacting the platform", productID)
		c.exec.Execute(func() { done(nil) })
		return
	}

	// The purchase outlives the request that started it.
	ctx = context.WithoutCancel(ctx)
	c.LoadProducts(ctx, []string{productID}, func(products []model.Product, err error) {
		if err != nil {
			var ierr *Error
			if errors.As(err, &ierr) && ierr.ProductID == "" {
				err = &Error{Kind: ierr.Kind, ProductID: productID, Err: ierr.Err}
			}
			done(err)
			return
		}
		if !containsProduct(products, productID) {
			glog.Warningf("[Coordinator] Catalog has no product %s", productID)
			done(&Error{Kind: ErrUnknownProduct, ProductID: productID})
			return
		}
		c.submit(ctx, productID, done)
	})
}

func (c *Coordinator) submit(ctx context.Context, productID string, done PurchaseCompletion) {
	pending := c.ledger.RegisterPurchase(productID, done)
	if err := c.payments.SubmitPayment(ctx, productID); err != nil {
		glog.Warningf("[Coordinator] Failed to submit payment for %s: %v", productID, err)
		c.ledger.AbandonPurchase(pending, &Error{Kind: ErrTransactionFailed, ProductID: productID, Err: err})
		return
	}
	glog.V(1).Infof("[Coordinator] Submitted payment for %s", productID)
}

func containsProduct(products []model.Product, productID string) bool {
	for _, p := range products {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// RestoreCompletedTransactions asks the platform to redeliver past
// purchases. done fires when the platform reports the restore finished. A
// restore that is still outstanding is resolved with ErrRestoreSuperseded.
func (c *Coordinator) RestoreCompletedTransactions(ctx context.Context, done RestoreCompletion) {
	if c.ledger.SetRestore(done) {
		glog.V(1).Info("[Coordinator] Replaced an outstanding restore")
	}
	if err := c.payments.RestorePastPurchases(ctx); err != nil {
		glog.Warningf("[Coordinator] Failed to start restore: %v", err)
		c.ledger.ResolveRestore(&Error{Kind: ErrRestoreFailed, Err: err})
	}
}

// ExpirePendingPurchases resolves purchases pending longer than maxAge with
// ErrPurchaseExpired.
func (c *Coordinator) ExpirePendingPurchases(maxAge time.Duration) int {
	n := c.ledger.ExpirePurchases(maxAge)
	if n > 0 {
		glog.Warningf("[Coordinator] Expired %d purchases pending longer than %s", n, maxAge)
	}
	return n
}

// Flush persists the purchased set now.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.store.Persist(ctx)
}

// Close detaches from the event sources and flushes the purchased set.
// Requests still pending stay unresolved.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, src := range c.events {
			if err := src.Unsubscribe(); err != nil {
				errs = append(errs, fmt.Errorf("failed to unsubscribe: %w", err))
			}
		}
		if err := c.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)

		stats := c.ledger.Stats()
		glog.Infof("[Coordinator] Closed - pending loads:%d, pending purchases:%d",
			stats.PendingLoads, stats.PendingPurchases)
	})
	return c.closeErr
}

// Stats describes the coordinator state.
type Stats struct {
	Purchased int         `json:"purchased"`
	Ledger    LedgerStats `json:"ledger"`
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Purchased: c.store.Len(),
		Ledger:    c.ledger.Stats(),
	}
}
