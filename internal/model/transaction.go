package model

// TransactionState is the platform-reported status of a payment transaction.
type TransactionState string

const (
	TransactionPurchasing TransactionState = "purchasing"
	TransactionPurchased  TransactionState = "purchased"
	TransactionRestored   TransactionState = "restored"
	TransactionFailed     TransactionState = "failed"
	// TransactionDeferred is reported by some storefronts while awaiting
	// external approval; it is observed but never acted on.
	TransactionDeferred TransactionState = "deferred"
)

// Transaction is one entry of the platform's transaction-update stream.
type Transaction struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	State     TransactionState `json:"state"`
	Error     string           `json:"error,omitempty"`
}

// IsTerminal reports whether the state completes a purchase attempt.
func (s TransactionState) IsTerminal() bool {
	switch s {
	case TransactionPurchased, TransactionRestored, TransactionFailed:
		return true
	}
	return false
}

// PurchaseRecord is the persisted set of purchased product identifiers.
type PurchaseRecord struct {
	Version    int      `json:"version" yaml:"version"`
	ProductIDs []string `json:"product_ids" yaml:"product_ids"`
}
