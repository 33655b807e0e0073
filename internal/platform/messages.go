// Package platform binds the purchase coordinator to concrete platform
// purchase services: a NATS message bridge, an HTTP catalog, a storefront
// reachability probe and an in-memory sandbox.
package platform

import "iap-coordinator/internal/model"

// Outbound subjects, relative to the configured prefix.
const (
	SubjectSubmitPayment   = "payments.submit"
	SubjectRestore         = "payments.restore"
	SubjectFinalize        = "transactions.finish"
	SubjectFetchProducts   = "catalog.fetch"
	SubjectTransactions    = "transactions.updated"
	SubjectRestoreComplete = "restore.completed"
	SubjectRevoked         = "entitlements.revoked"
	SubjectProducts        = "catalog.response"
	SubjectCapability      = "payments.capability"
)

// PaymentRequest is published to submit a payment.
type PaymentRequest struct {
	RequestID string `json:"request_id"`
	ProductID string `json:"product_id"`
}

// RestoreRequest is published to start a restore.
type RestoreRequest struct {
	RequestID string `json:"request_id"`
}

// FinalizeRequest acknowledges a delivered transaction.
type FinalizeRequest struct {
	TransactionID string `json:"transaction_id"`
	ProductID     string `json:"product_id"`
}

// ProductsRequest asks the catalog for products.
type ProductsRequest struct {
	Handle     string   `json:"handle"`
	ProductIDs []string `json:"product_ids"`
}

// TransactionsEvent carries transaction updates.
type TransactionsEvent struct {
	Transactions []model.Transaction `json:"transactions"`
}

// RestoreCompletedEvent ends a restore. Error is empty on success.
type RestoreCompletedEvent struct {
	Error string `json:"error,omitempty"`
}

// RevokedEvent lists products the platform no longer grants.
type RevokedEvent struct {
	ProductIDs []string `json:"product_ids"`
}

// ProductsEvent answers a ProductsRequest.
type ProductsEvent struct {
	Handle   string          `json:"handle"`
	Products []model.Product `json:"products"`
	Error    string          `json:"error,omitempty"`
}

// CapabilityEvent reports whether the platform accepts payments.
type CapabilityEvent struct {
	CanAcceptPayments bool `json:"can_accept_payments"`
}
