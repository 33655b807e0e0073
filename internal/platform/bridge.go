package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/model"
	"iap-coordinator/pkg/uid"
)

// publisher is the part of *nats.Conn the bridge sends with.
type publisher interface {
	Publish(subject string, data []byte) error
}

// BridgeConfig configures the NATS bridge.
type BridgeConfig struct {
	URL             string
	Username        string
	Password        string
	SubjectPrefix   string
	PaymentsEnabled bool
}

// Bridge talks to the platform purchase service over NATS. It implements
// iap.PaymentQueue, iap.Catalog and iap.EventSource.
type Bridge struct {
	conn   *nats.Conn
	pub    publisher
	prefix string
	canPay atomic.Bool

	mu      sync.Mutex
	handler iap.EventHandler
	subs    []*nats.Subscription
}

// NewBridge connects to NATS.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("iap-coordinator"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			glog.Errorf("[NATS] Disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			glog.Infof("[NATS] Reconnected to %v", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			glog.V(2).Infof("[NATS] Connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			glog.Errorf("[NATS] Error: %v", err)
		}),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server at %s: %w", cfg.URL, err)
	}

	b := newBridge(conn, cfg.SubjectPrefix, cfg.PaymentsEnabled)
	b.conn = conn
	glog.Infof("[Bridge] Connected to %s, subject prefix %s", cfg.URL, b.prefix)
	return b, nil
}

func newBridge(pub publisher, prefix string, paymentsEnabled bool) *Bridge {
	if prefix == "" {
		prefix = "iap"
	}
	b := &Bridge{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
	b.canPay.Store(paymentsEnabled)
	return b
}

func (b *Bridge) subject(name string) string {
	return b.prefix + "." + name
}

func (b *Bridge) publish(ctx context.Context, name string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", name, err)
	}
	if err := b.pub.Publish(b.subject(name), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.subject(name), err)
	}
	return nil
}

// CanAcceptPayments reports the last capability the platform announced.
func (b *Bridge) CanAcceptPayments() bool {
	return b.canPay.Load()
}

// SubmitPayment publishes a payment request.
func (b *Bridge) SubmitPayment(ctx context.Context, productID string) error {
	return b.publish(ctx, SubjectSubmitPayment, PaymentRequest{RequestID: uid.New(), ProductID: productID})
}

// RestorePastPurchases publishes a restore request.
func (b *Bridge) RestorePastPurchases(ctx context.Context) error {
	return b.publish(ctx, SubjectRestore, RestoreRequest{RequestID: uid.New()})
}

// FinalizeTransaction acknowledges tx.
func (b *Bridge) FinalizeTransaction(ctx context.Context, tx model.Transaction) error {
	return b.publish(ctx, SubjectFinalize, FinalizeRequest{TransactionID: tx.ID, ProductID: tx.ProductID})
}

// FetchProducts publishes a catalog request tagged with handle.
func (b *Bridge) FetchProducts(ctx context.Context, handle string, productIDs []string) error {
	return b.publish(ctx, SubjectFetchProducts, ProductsRequest{Handle: handle, ProductIDs: productIDs})
}

// Subscribe starts delivering platform events to h.
func (b *Bridge) Subscribe(h iap.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handler != nil {
		return errors.New("bridge already has a subscriber")
	}
	b.handler = h

	if b.conn == nil {
		return nil
	}
	for _, name := range []string{SubjectTransactions, SubjectRestoreComplete, SubjectRevoked, SubjectProducts, SubjectCapability} {
		sub, err := b.conn.Subscribe(b.subject(name), func(msg *nats.Msg) {
			b.handleMessage(msg.Subject, msg.Data)
		})
		if err != nil {
			b.unsubscribeLocked()
			return fmt.Errorf("failed to subscribe to subject %s: %w", b.subject(name), err)
		}
		b.subs = append(b.subs, sub)
	}
	glog.V(2).Infof("[Bridge] Subscribed to %d subjects under %s", len(b.subs), b.prefix)
	return nil
}

// Unsubscribe stops event delivery.
func (b *Bridge) Unsubscribe() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribeLocked()
}

func (b *Bridge) unsubscribeLocked() error {
	var errs []error
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	b.subs = nil
	b.handler = nil
	return errors.Join(errs...)
}

func (b *Bridge) currentHandler() iap.EventHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler
}

// handleMessage decodes one inbound message and forwards it to the handler.
func (b *Bridge) handleMessage(subject string, data []byte) {
	name := strings.TrimPrefix(subject, b.prefix+".")

	if name == SubjectCapability {
		var ev CapabilityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			glog.Errorf("[Bridge] Bad %s message: %v", subject, err)
			return
		}
		b.canPay.Store(ev.CanAcceptPayments)
		glog.Infof("[Bridge] Platform payments enabled: %v", ev.CanAcceptPayments)
		return
	}

	h := b.currentHandler()
	if h == nil {
		glog.Warningf("[Bridge] Dropping %s message, no subscriber", subject)
		return
	}
	ctx := context.Background()

	switch name {
	case SubjectTransactions:
		var ev TransactionsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			glog.Errorf("[Bridge] Bad %s message: %v, raw data: %s", subject, err, string(data))
			return
		}
		h.HandleTransactions(ctx, ev.Transactions)

	case SubjectRestoreComplete:
		var ev RestoreCompletedEvent
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev); err != nil {
				glog.Errorf("[Bridge] Bad %s message: %v, raw data: %s", subject, err, string(data))
				return
			}
		}
		h.HandleRestoreCompleted(ctx, ev.Error)

	case SubjectRevoked:
		var ev RevokedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			glog.Errorf("[Bridge] Bad %s message: %v, raw data: %s", subject, err, string(data))
			return
		}
		h.HandleEntitlementsRevoked(ctx, ev.ProductIDs)

	case SubjectProducts:
		var ev ProductsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			glog.Errorf("[Bridge] Bad %s message: %v, raw data: %s", subject, err, string(data))
			return
		}
		if ev.Handle == "" {
			glog.Warningf("[Bridge] %s message without handle dropped", subject)
			return
		}
		h.HandleProductsResponse(ctx, ev.Handle, ev.Products, ev.Error)

	default:
		glog.V(1).Infof("[Bridge] Ignoring message on %s", subject)
	}
}

// IsConnected reports whether the NATS connection is up.
func (b *Bridge) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

var (
	_ iap.PaymentQueue = (*Bridge)(nil)
	_ iap.Catalog      = (*Bridge)(nil)
	_ iap.EventSource  = (*Bridge)(nil)
)
