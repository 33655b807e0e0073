package platform

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iap-coordinator/internal/model"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func TestBridge_PublishesRequests(t *testing.T) {
	pub := &fakePublisher{}
	b := newBridge(pub, "shop.iap.", true)
	ctx := context.Background()

	require.NoError(t, b.SubmitPayment(ctx, "com.app.pro"))
	require.NoError(t, b.RestorePastPurchases(ctx))
	require.NoError(t, b.FetchProducts(ctx, "cat_1", []string{"a", "b"}))
	require.NoError(t, b.FinalizeTransaction(ctx, model.Transaction{ID: "t1", ProductID: "a"}))

	require.Len(t, pub.msgs, 4)
	assert.Equal(t, "shop.iap.payments.submit", pub.msgs[0].subject)
	assert.Equal(t, "shop.iap.payments.restore", pub.msgs[1].subject)
	assert.Equal(t, "shop.iap.catalog.fetch", pub.msgs[2].subject)
	assert.Equal(t, "shop.iap.transactions.finish", pub.msgs[3].subject)

	var pay PaymentRequest
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &pay))
	assert.Equal(t, "com.app.pro", pay.ProductID)
	assert.NotEmpty(t, pay.RequestID)

	assert.JSONEq(t, `{"handle":"cat_1","product_ids":["a","b"]}`, string(pub.msgs[2].data))
	assert.JSONEq(t, `{"transaction_id":"t1","product_id":"a"}`, string(pub.msgs[3].data))
}

func TestBridge_PublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	b := newBridge(pub, "", true)

	err := b.SubmitPayment(context.Background(), "p1")
	assert.ErrorContains(t, err, "iap.payments.submit")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.RestorePastPurchases(ctx), context.Canceled)
}

func TestBridge_DeliversEvents(t *testing.T) {
	b := newBridge(&fakePublisher{}, "iap", true)
	rec := newRecorder()
	require.NoError(t, b.Subscribe(rec))
	assert.Error(t, b.Subscribe(rec))

	b.handleMessage("iap.transactions.updated", []byte(`{"transactions":[{"id":"t1","product_id":"p1","state":"purchased"}]}`))
	b.handleMessage("iap.restore.completed", []byte(`{"error":"cancelled"}`))
	b.handleMessage("iap.restore.completed", nil)
	b.handleMessage("iap.entitlements.revoked", []byte(`{"product_ids":["p1"]}`))
	b.handleMessage("iap.catalog.response", []byte(`{"handle":"cat_9","products":[{"id":"p1","title":"Pro"}]}`))

	assert.Equal(t, []model.Transaction{{ID: "t1", ProductID: "p1", State: model.TransactionPurchased}}, rec.txs)
	assert.Equal(t, []string{"cancelled", ""}, rec.restores)
	assert.Equal(t, [][]string{{"p1"}}, rec.revoked)
	require.Len(t, rec.products, 1)
	assert.Equal(t, "cat_9", rec.products[0].handle)
	assert.Equal(t, []model.Product{{ID: "p1", Title: "Pro"}}, rec.products[0].products)
}

func TestBridge_DropsBadMessages(t *testing.T) {
	b := newBridge(&fakePublisher{}, "iap", true)
	rec := newRecorder()
	require.NoError(t, b.Subscribe(rec))

	b.handleMessage("iap.transactions.updated", []byte(`{not json`))
	b.handleMessage("iap.catalog.response", []byte(`{"products":[]}`))
	b.handleMessage("iap.unknown", []byte(`{}`))

	assert.Empty(t, rec.txs)
	assert.Empty(t, rec.products)
}

func TestBridge_CapabilityUpdates(t *testing.T) {
	b := newBridge(&fakePublisher{}, "iap", true)
	assert.True(t, b.CanAcceptPayments())

	b.handleMessage("iap.payments.capability", []byte(`{"can_accept_payments":false}`))
	assert.False(t, b.CanAcceptPayments())
}

func TestBridge_UnsubscribeStopsDelivery(t *testing.T) {
	b := newBridge(&fakePublisher{}, "iap", true)
	rec := newRecorder()
	require.NoError(t, b.Subscribe(rec))
	require.NoError(t, b.Unsubscribe())

	b.handleMessage("iap.restore.completed", []byte(`{}`))
	assert.Empty(t, rec.restores)
	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Close())
}
