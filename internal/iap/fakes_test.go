package iap

import (
	"context"
	"errors"
	"sync"

	"iap-coordinator/internal/model"
	"iap-coordinator/internal/repository"
)

// memBackend is an in-memory repository.Backend.
type memBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	writes   int
	writeErr error
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (b *memBackend) Read(_ context.Context, location string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[location]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBackend) Write(_ context.Context, location string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	if b.writeErr != nil {
		return b.writeErr
	}
	b.data[location] = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Close() error { return nil }

func (b *memBackend) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

type fetchCall struct {
	handle string
	ids    []string
}

// fakePlatform records every call made to the payment queue and catalog.
type fakePlatform struct {
	mu         sync.Mutex
	canPay     bool
	fetchErr   error
	submitErr  error
	restoreErr error

	fetches   []fetchCall
	submitted []string
	restores  int
	finalized []model.Transaction

	handler     EventHandler
	unsubscribe int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{canPay: true}
}

func (p *fakePlatform) CanAcceptPayments() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canPay
}

func (p *fakePlatform) SubmitPayment(_ context.Context, productID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return p.submitErr
	}
	p.submitted = append(p.submitted, productID)
	return nil
}

func (p *fakePlatform) RestorePastPurchases(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restores++
	return p.restoreErr
}

func (p *fakePlatform) FinalizeTransaction(_ context.Context, tx model.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized = append(p.finalized, tx)
	return nil
}

func (p *fakePlatform) FetchProducts(_ context.Context, handle string, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return p.fetchErr
	}
	p.fetches = append(p.fetches, fetchCall{handle: handle, ids: append([]string(nil), ids...)})
	return nil
}

func (p *fakePlatform) Subscribe(h EventHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return errors.New("already subscribed")
	}
	p.handler = h
	return nil
}

func (p *fakePlatform) Unsubscribe() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = nil
	p.unsubscribe++
	return nil
}

func (p *fakePlatform) lastFetch() fetchCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fetches) == 0 {
		return fetchCall{}
	}
	return p.fetches[len(p.fetches)-1]
}

func (p *fakePlatform) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fetches)
}

func (p *fakePlatform) submittedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.submitted...)
}
