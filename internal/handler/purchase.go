package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"iap-coordinator/internal/iap"
	"iap-coordinator/internal/model"
	"iap-coordinator/pkg/apierror"
	"iap-coordinator/pkg/response"
)

// Coordinator is the purchase API the handlers expose.
type Coordinator interface {
	CanMakePayments(ctx context.Context) bool
	IsProductPurchased(productID string) bool
	PurchasedProductIDs() []string
	LoadProducts(ctx context.Context, productIDs []string, done iap.LoadCompletion)
	PurchaseProduct(ctx context.Context, productID string, done iap.PurchaseCompletion)
	RestoreCompletedTransactions(ctx context.Context, done iap.RestoreCompletion)
}

// PurchaseHandler handles product and purchase HTTP requests. Requests wait
// for the platform result up to the configured limit; past it they answer
// 202 and the operation keeps running.
type PurchaseHandler struct {
	coord Coordinator
	wait  time.Duration
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(coord Coordinator, wait time.Duration) *PurchaseHandler {
	if wait <= 0 {
		wait = 60 * time.Second
	}
	return &PurchaseHandler{coord: coord, wait: wait}
}

// PendingResponse is returned with 202 when the platform has not answered yet.
type PendingResponse struct {
	Status    string `json:"status"`
	ProductID string `json:"product_id,omitempty"`
}

// LoadProductsRequest is the body of POST /api/v1/products/load.
type LoadProductsRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type loadResult struct {
	products []model.Product
	err      error
}

// await waits for a result, the request context or the wait limit.
// It reports false when the caller should answer pending.
func await[T any](ctx context.Context, wait time.Duration, ch <-chan T) (T, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, true
	case <-ctx.Done():
	case <-timer.C:
	}
	var zero T
	return zero, false
}

// Capability handles GET /api/v1/payments/capability
func (h *PurchaseHandler) Capability(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"can_make_payments": h.coord.CanMakePayments(r.Context()),
	})
}

// ListPurchased handles GET /api/v1/products/purchased
func (h *PurchaseHandler) ListPurchased(w http.ResponseWriter, r *http.Request) {
	ids := h.coord.PurchasedProductIDs()
	response.JSONWithTotal(w, http.StatusOK, ids, len(ids))
}

// IsPurchased handles GET /api/v1/products/{product_id}/purchased
func (h *PurchaseHandler) IsPurchased(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if !iap.ValidProductID(productID) {
		response.Error(w, apierror.BadRequest("invalid product_id"))
		return
	}

	response.OK(w, map[string]interface{}{
		"product_id": productID,
		"purchased":  h.coord.IsProductPurchased(productID),
	})
}

// LoadProducts handles POST /api/v1/products/load
func (h *PurchaseHandler) LoadProducts(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req LoadProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if len(req.ProductIDs) == 0 {
		response.Error(w, apierror.ValidationError("", apierror.FieldError{
			Field:   "product_ids",
			Message: "at least one product id is required",
		}))
		return
	}
	var details []apierror.FieldError
	for _, id := range req.ProductIDs {
		if !iap.ValidProductID(id) {
			details = append(details, apierror.FieldError{Field: "product_ids", Message: "invalid product id: " + id})
		}
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("", details...))
		return
	}

	ch := make(chan loadResult, 1)
	h.coord.LoadProducts(r.Context(), req.ProductIDs, func(products []model.Product, err error) {
		ch <- loadResult{products: products, err: err}
	})

	res, ok := await(r.Context(), h.wait, ch)
	if !ok {
		response.JSON(w, http.StatusAccepted, PendingResponse{Status: "pending"})
		return
	}
	if res.err != nil {
		response.Error(w, toAPIError(res.err))
		return
	}
	if res.products == nil {
		res.products = []model.Product{}
	}
	response.JSONWithTotal(w, http.StatusOK, res.products, len(res.products))
}

// Purchase handles POST /api/v1/products/{product_id}/purchase
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if !iap.ValidProductID(productID) {
		response.Error(w, apierror.BadRequest("invalid product_id"))
		return
	}

	ch := make(chan error, 1)
	h.coord.PurchaseProduct(r.Context(), productID, func(err error) { ch <- err })

	err, ok := await(r.Context(), h.wait, ch)
	if !ok {
		glog.V(1).Infof("[PurchaseHandler] Purchase of %s still pending", productID)
		response.JSON(w, http.StatusAccepted, PendingResponse{Status: "pending", ProductID: productID})
		return
	}
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	response.OK(w, map[string]interface{}{
		"product_id": productID,
		"status":     "purchased",
	})
}

// Restore handles POST /api/v1/purchases/restore
func (h *PurchaseHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ch := make(chan error, 1)
	h.coord.RestoreCompletedTransactions(r.Context(), func(err error) { ch <- err })

	err, ok := await(r.Context(), h.wait, ch)
	if !ok {
		response.JSON(w, http.StatusAccepted, PendingResponse{Status: "pending"})
		return
	}
	if err != nil {
		response.Error(w, toAPIError(err))
		return
	}

	ids := h.coord.PurchasedProductIDs()
	response.JSONWithTotal(w, http.StatusOK, map[string]interface{}{
		"status":    "restored",
		"purchased": ids,
	}, len(ids))
}

// toAPIError maps coordinator errors to HTTP errors.
func toAPIError(err error) *apierror.Error {
	msg := err.Error()
	switch {
	case errors.Is(err, iap.ErrCapabilityUnavailable):
		return apierror.ServiceUnavailable(msg)
	case errors.Is(err, iap.ErrUnknownProduct):
		return apierror.NotFound(msg)
	case errors.Is(err, iap.ErrTransactionFailed):
		return apierror.PaymentFailed(msg)
	case errors.Is(err, iap.ErrCatalogFetchFailed), errors.Is(err, iap.ErrRestoreFailed):
		return apierror.BadGateway(msg)
	case errors.Is(err, iap.ErrPurchaseExpired):
		return apierror.GatewayTimeout(msg)
	case errors.Is(err, iap.ErrRestoreSuperseded):
		return apierror.Conflict(msg)
	}
	glog.Errorf("[PurchaseHandler] Unexpected error: %v", err)
	return apierror.InternalError("")
}
