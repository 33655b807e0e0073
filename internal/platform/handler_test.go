package platform

import (
	"context"
	"sync"

	"iap-coordinator/internal/model"
)

type productsCall struct {
	handle   string
	products []model.Product
	errMsg   string
}

// recorder is an iap.EventHandler that records every event.
type recorder struct {
	mu       sync.Mutex
	txs      []model.Transaction
	restores []string
	revoked  [][]string
	products []productsCall
	got      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) signal() {
	select {
	case r.got <- struct{}{}:
	default:
	}
}

func (r *recorder) HandleTransactions(_ context.Context, txs []model.Transaction) {
	r.mu.Lock()
	r.txs = append(r.txs, txs...)
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) HandleRestoreCompleted(_ context.Context, errMsg string) {
	r.mu.Lock()
	r.restores = append(r.restores, errMsg)
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) HandleEntitlementsRevoked(_ context.Context, ids []string) {
	r.mu.Lock()
	r.revoked = append(r.revoked, ids)
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) HandleProductsResponse(_ context.Context, handle string, products []model.Product, errMsg string) {
	r.mu.Lock()
	r.products = append(r.products, productsCall{handle: handle, products: products, errMsg: errMsg})
	r.mu.Unlock()
	r.signal()
}

func (r *recorder) productCalls() []productsCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]productsCall(nil), r.products...)
}
