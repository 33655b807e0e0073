package iap

import (
	"context"

	"iap-coordinator/internal/model"
)

// PaymentQueue is the platform payment service.
type PaymentQueue interface {
	// CanAcceptPayments reports whether the platform allows payments.
	CanAcceptPayments() bool

	// SubmitPayment queues a payment; results arrive as transaction events.
	SubmitPayment(ctx context.Context, productID string) error

	// RestorePastPurchases asks the platform to redeliver completed
	// transactions; the end of the restore arrives as a restore event.
	RestorePastPurchases(ctx context.Context) error

	// FinalizeTransaction acknowledges a delivered transaction so it is not
	// delivered again.
	FinalizeTransaction(ctx context.Context, tx model.Transaction) error
}

// Catalog is the platform product catalog service.
type Catalog interface {
	// FetchProducts requests products; the response arrives as a products
	// event carrying handle.
	FetchProducts(ctx context.Context, handle string, productIDs []string) error
}

// Reachability probes whether the platform storefront can be reached.
type Reachability interface {
	Reachable(ctx context.Context) bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func(ctx context.Context) bool

// Reachable calls f(ctx).
func (f ReachabilityFunc) Reachable(ctx context.Context) bool { return f(ctx) }

// EventSource delivers asynchronous platform events to a handler.
type EventSource interface {
	Subscribe(h EventHandler) error
	Unsubscribe() error
}

// EventHandler consumes platform events. Methods may be called concurrently
// from any goroutine.
type EventHandler interface {
	HandleTransactions(ctx context.Context, txs []model.Transaction)
	HandleRestoreCompleted(ctx context.Context, errMsg string)
	HandleEntitlementsRevoked(ctx context.Context, productIDs []string)
	HandleProductsResponse(ctx context.Context, handle string, products []model.Product, errMsg string)
}
