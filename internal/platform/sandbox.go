package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/model"
)

// SandboxConfig configures the in-memory platform.
type SandboxConfig struct {
	Products        []model.Product
	PaymentsEnabled bool
	Unreachable     bool
	// Delay postpones every event. Zero delivers events before the
	// triggering call returns.
	Delay time.Duration
}

// Sandbox is an in-memory platform purchase service. Every payment for a
// known product succeeds unless declined with Decline.
type Sandbox struct {
	mu        sync.Mutex
	products  map[string]model.Product
	owned     map[string]struct{}
	declined  map[string]string
	unacked   map[string]model.Transaction
	canPay    bool
	reachable bool
	delay     time.Duration
	seq       int
	handler   iap.EventHandler
	timers    sync.WaitGroup
}

// NewSandbox creates a sandbox platform.
func NewSandbox(cfg SandboxConfig) *Sandbox {
	s := &Sandbox{
		products:  make(map[string]model.Product, len(cfg.Products)),
		owned:     make(map[string]struct{}),
		declined:  make(map[string]string),
		unacked:   make(map[string]model.Transaction),
		canPay:    cfg.PaymentsEnabled,
		reachable: !cfg.Unreachable,
		delay:     cfg.Delay,
	}
	for _, p := range cfg.Products {
		s.products[p.ID] = p
	}
	glog.Infof("[Sandbox] Platform sandbox with %d products, delay %s", len(s.products), s.delay)
	return s
}

// ParseSandboxProducts builds products from "id" or "id=price" entries.
func ParseSandboxProducts(entries []string) []model.Product {
	products := make([]model.Product, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		id, price, _ := strings.Cut(e, "=")
		products = append(products, model.Product{
			ID:           id,
			Title:        id,
			DisplayPrice: price,
		})
	}
	return products
}

// CanAcceptPayments implements iap.PaymentQueue.
func (s *Sandbox) CanAcceptPayments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canPay
}

// Reachable implements iap.Reachability.
func (s *Sandbox) Reachable(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachable
}

// IsConnected always reports true.
func (s *Sandbox) IsConnected() bool { return true }

// SetPaymentsEnabled toggles the payment capability.
func (s *Sandbox) SetPaymentsEnabled(enabled bool) {
	s.mu.Lock()
	s.canPay = enabled
	s.mu.Unlock()
}

// SetReachable toggles storefront reachability.
func (s *Sandbox) SetReachable(reachable bool) {
	s.mu.Lock()
	s.reachable = reachable
	s.mu.Unlock()
}

// Decline makes every future payment for productID fail with reason.
func (s *Sandbox) Decline(productID, reason string) {
	s.mu.Lock()
	s.declined[productID] = reason
	s.mu.Unlock()
}

func (s *Sandbox) nextTransaction(productID string, state model.TransactionState, errMsg string) model.Transaction {
	s.seq++
	tx := model.Transaction{
		ID:        fmt.Sprintf("sbx-%06d", s.seq),
		ProductID: productID,
		State:     state,
		Error:     errMsg,
	}
	if state.IsTerminal() {
		s.unacked[tx.ID] = tx
	}
	return tx
}

// SubmitPayment implements iap.PaymentQueue.
func (s *Sandbox) SubmitPayment(ctx context.Context, productID string) error {
	s.mu.Lock()
	if !s.canPay {
		s.mu.Unlock()
		return errors.New("payments are disabled")
	}
	purchasing := s.nextTransaction(productID, model.TransactionPurchasing, "")
	var result model.Transaction
	if _, known := s.products[productID]; !known {
		result = s.nextTransaction(productID, model.TransactionFailed, "product not available in storefront")
	} else if reason, declined := s.declined[productID]; declined {
		result = s.nextTransaction(productID, model.TransactionFailed, reason)
	} else {
		s.owned[productID] = struct{}{}
		result = s.nextTransaction(productID, model.TransactionPurchased, "")
	}
	s.mu.Unlock()

	s.emit(func(ctx context.Context, h iap.EventHandler) {
		h.HandleTransactions(ctx, []model.Transaction{purchasing})
		h.HandleTransactions(ctx, []model.Transaction{result})
	})
	return nil
}

// RestorePastPurchases implements iap.PaymentQueue.
func (s *Sandbox) RestorePastPurchases(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.owned))
	for id := range s.owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	txs := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		txs = append(txs, s.nextTransaction(id, model.TransactionRestored, ""))
	}
	s.mu.Unlock()

	s.emit(func(ctx context.Context, h iap.EventHandler) {
		if len(txs) > 0 {
			h.HandleTransactions(ctx, txs)
		}
		h.HandleRestoreCompleted(ctx, "")
	})
	return nil
}

// FinalizeTransaction implements iap.PaymentQueue.
func (s *Sandbox) FinalizeTransaction(_ context.Context, tx model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unacked[tx.ID]; !ok {
		return fmt.Errorf("unknown transaction %s", tx.ID)
	}
	delete(s.unacked, tx.ID)
	return nil
}

// Unfinalized returns the number of terminal transactions not yet finalized.
func (s *Sandbox) Unfinalized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unacked)
}

// FetchProducts implements iap.Catalog.
func (s *Sandbox) FetchProducts(ctx context.Context, handle string, productIDs []string) error {
	s.mu.Lock()
	found := make([]model.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			found = append(found, p)
		}
	}
	s.mu.Unlock()

	s.emit(func(ctx context.Context, h iap.EventHandler) {
		h.HandleProductsResponse(ctx, handle, found, "")
	})
	return nil
}

// Revoke withdraws productIDs and notifies the subscriber.
func (s *Sandbox) Revoke(productIDs ...string) {
	s.mu.Lock()
	for _, id := range productIDs {
		delete(s.owned, id)
	}
	s.mu.Unlock()

	s.emit(func(ctx context.Context, h iap.EventHandler) {
		h.HandleEntitlementsRevoked(ctx, productIDs)
	})
}

// Subscribe implements iap.EventSource.
func (s *Sandbox) Subscribe(h iap.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return errors.New("sandbox already has a subscriber")
	}
	s.handler = h
	return nil
}

// Unsubscribe implements iap.EventSource.
func (s *Sandbox) Unsubscribe() error {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

func (s *Sandbox) emit(fn func(ctx context.Context, h iap.EventHandler)) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()

	deliver := func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h == nil {
			glog.Warningf("[Sandbox] Dropping event, no subscriber")
			return
		}
		fn(context.Background(), h)
	}

	if delay <= 0 {
		deliver()
		return
	}
	s.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer s.timers.Done()
		deliver()
	})
}

// Wait blocks until every delayed event has been delivered.
func (s *Sandbox) Wait() {
	s.timers.Wait()
}

var (
	_ iap.PaymentQueue = (*Sandbox)(nil)
	_ iap.Catalog      = (*Sandbox)(nil)
	_ iap.EventSource  = (*Sandbox)(nil)
	_ iap.Reachability = (*Sandbox)(nil)
)
