package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang/glog"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/model"
)

const lookupPath = "/v1/products:lookup"

type lookupRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type lookupResponse struct {
	Products []model.Product `json:"products"`
}

type lookupError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPCatalog resolves products through a catalog HTTP service. Each fetch
// runs in the background and answers through the subscribed handler, so it
// implements both iap.Catalog and iap.EventSource.
type HTTPCatalog struct {
	client *resty.Client

	mu      sync.RWMutex
	handler iap.EventHandler
	wg      sync.WaitGroup
}

// NewHTTPCatalog creates a catalog client for baseURL.
func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	glog.Infof("[HTTPCatalog] Using catalog at %s", baseURL)
	return &HTTPCatalog{client: client}
}

// Subscribe sets the handler that receives product responses.
func (c *HTTPCatalog) Subscribe(h iap.EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return errors.New("catalog already has a subscriber")
	}
	c.handler = h
	return nil
}

// Unsubscribe detaches the handler. Fetches already running still finish
// but their responses are dropped.
func (c *HTTPCatalog) Unsubscribe() error {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
	return nil
}

// FetchProducts starts a lookup and returns immediately.
func (c *HTTPCatalog) FetchProducts(ctx context.Context, handle string, productIDs []string) error {
	c.mu.RLock()
	subscribed := c.handler != nil
	c.mu.RUnlock()
	if !subscribed {
		return errors.New("catalog has no subscriber")
	}

	ids := append([]string(nil), productIDs...)
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		products, err := c.lookup(ctx, ids)

		c.mu.RLock()
		h := c.handler
		c.mu.RUnlock()
		if h == nil {
			glog.Warningf("[HTTPCatalog] Dropping response for %s, no subscriber", handle)
			return
		}

		if err != nil {
			glog.Warningf("[HTTPCatalog] Lookup %s failed: %v", handle, err)
			h.HandleProductsResponse(ctx, handle, nil, err.Error())
			return
		}
		h.HandleProductsResponse(ctx, handle, products, "")
	}()
	return nil
}

func (c *HTTPCatalog) lookup(ctx context.Context, ids []string) ([]model.Product, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(lookupRequest{ProductIDs: ids}).
		SetResult(&lookupResponse{}).
		SetError(&lookupError{}).
		Post(lookupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to call catalog: %w", err)
	}

	if resp.IsError() {
		if e, ok := resp.Error().(*lookupError); ok && e.Error.Message != "" {
			return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode(), e.Error.Message)
		}
		return nil, fmt.Errorf("catalog returned %s", resp.Status())
	}

	result, ok := resp.Result().(*lookupResponse)
	if !ok {
		return nil, errors.New("catalog returned an unexpected body")
	}
	glog.V(2).Infof("[HTTPCatalog] Resolved %d of %d products", len(result.Products), len(ids))
	return result.Products, nil
}

// Wait blocks until every running lookup has answered.
func (c *HTTPCatalog) Wait() {
	c.wg.Wait()
}

var (
	_ iap.Catalog     = (*HTTPCatalog)(nil)
	_ iap.EventSource = (*HTTPCatalog)(nil)
)
