package iap

import (
	"context"

	"github.com/golang/glog"

	"iap-coordinator/internal/model"
)

// HandleTransactions applies transaction updates from the payment queue.
func (c *Coordinator) HandleTransactions(ctx context.Context, txs []model.Transaction) {
	for _, tx := range txs {
		c.reconcile(ctx, tx)
	}
}

func (c *Coordinator) reconcile(ctx context.Context, tx model.Transaction) {
	switch tx.State {
	case model.TransactionPurchasing:
		glog.V(2).Infof("[Reconciler] %s purchasing (tx:%s)", tx.ProductID, tx.ID)
		return

	case model.TransactionPurchased, model.TransactionRestored:
		if !ValidProductID(tx.ProductID) {
			glog.Warningf("[Reconciler] Ignoring %s transaction %s with invalid product id %q", tx.State, tx.ID, tx.ProductID)
			c.finalize(ctx, tx)
			return
		}
		// Persist failures are logged by the store and do not fail the purchase.
		_ = c.store.MarkPurchased(ctx, tx.ProductID)
		if !c.ledger.ResolvePurchase(tx.ProductID, nil) {
			glog.V(1).Infof("[Reconciler] %s %s with no pending purchase", tx.ProductID, tx.State)
		}
		c.finalize(ctx, tx)

	case model.TransactionFailed:
		err := &Error{Kind: ErrTransactionFailed, ProductID: tx.ProductID, Err: platformError(tx.Error)}
		if !c.ledger.ResolvePurchase(tx.ProductID, err) {
			glog.Warningf("[Reconciler] Unmatched failure for %s: %s", tx.ProductID, tx.Error)
		}
		c.finalize(ctx, tx)

	default:
		glog.V(1).Infof("[Reconciler] Ignoring %q transaction %s for %s", tx.State, tx.ID, tx.ProductID)
	}
}

func (c *Coordinator) finalize(ctx context.Context, tx model.Transaction) {
	if err := c.payments.FinalizeTransaction(ctx, tx); err != nil {
		glog.Errorf("[Reconciler] Failed to finalize transaction %s: %v", tx.ID, err)
	}
}

// HandleRestoreCompleted resolves the outstanding restore. A non-empty
// errMsg is the platform's failure reason.
func (c *Coordinator) HandleRestoreCompleted(ctx context.Context, errMsg string) {
	var err error
	if errMsg != "" {
		err = &Error{Kind: ErrRestoreFailed, Err: platformError(errMsg)}
	}
	if !c.ledger.ResolveRestore(err) {
		glog.V(1).Infof("[Reconciler] Restore completed with no restore outstanding (err:%q)", errMsg)
		return
	}
	glog.Infof("[Reconciler] Restore completed, purchased:%d", c.store.Len())
}

// HandleEntitlementsRevoked removes revoked products from the purchased set.
func (c *Coordinator) HandleEntitlementsRevoked(ctx context.Context, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}
	_ = c.store.Revoke(ctx, productIDs)
	glog.Infof("[Reconciler] Revoked %d products", len(productIDs))
}

// HandleProductsResponse resolves the catalog load registered under handle.
func (c *Coordinator) HandleProductsResponse(ctx context.Context, handle string, products []model.Product, errMsg string) {
	var err error
	if errMsg != "" {
		err = &Error{Kind: ErrCatalogFetchFailed, Err: platformError(errMsg)}
	}
	if !c.ledger.ResolveLoad(handle, products, err) {
		glog.V(1).Infof("[Reconciler] Catalog response for unknown handle %s", handle)
	}
}

var _ EventHandler = (*Coordinator)(nil)
