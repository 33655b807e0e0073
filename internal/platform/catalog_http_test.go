package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iap-coordinator/internal/model"
)

func TestHTTPCatalog_Lookup(t *testing.T) {
	gotIDs := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/products:lookup", r.URL.Path)

		var req lookupRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotIDs <- req.ProductIDs

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[{"id":"a","title":"A","display_price":"0.99"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL+"/", time.Second)
	rec := newRecorder()
	require.NoError(t, c.Subscribe(rec))

	require.NoError(t, c.FetchProducts(context.Background(), "cat_1", []string{"a", "b"}))
	c.Wait()

	assert.Equal(t, []string{"a", "b"}, <-gotIDs)
	calls := rec.productCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cat_1", calls[0].handle)
	assert.Empty(t, calls[0].errMsg)
	assert.Equal(t, []model.Product{{ID: "a", Title: "A", DisplayPrice: "0.99"}}, calls[0].products)
}

func TestHTTPCatalog_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"MAINTENANCE","message":"catalog offline"}}`))
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL, time.Second)
	rec := newRecorder()
	require.NoError(t, c.Subscribe(rec))

	require.NoError(t, c.FetchProducts(context.Background(), "cat_2", []string{"a"}))
	c.Wait()

	calls := rec.productCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "cat_2", calls[0].handle)
	assert.Contains(t, calls[0].errMsg, "catalog offline")
	assert.Nil(t, calls[0].products)
}

func TestHTTPCatalog_RequiresSubscriber(t *testing.T) {
	c := NewHTTPCatalog("http://127.0.0.1:1", time.Second)
	assert.Error(t, c.FetchProducts(context.Background(), "cat_3", []string{"a"}))
}

func TestHTTPCatalog_RequestContextDoesNotCancelLookup(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPCatalog(srv.URL, 5*time.Second)
	rec := newRecorder()
	require.NoError(t, c.Subscribe(rec))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.FetchProducts(ctx, "cat_4", []string{"a"}))
	cancel()
	close(release)
	c.Wait()

	calls := rec.productCalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].errMsg)
}
