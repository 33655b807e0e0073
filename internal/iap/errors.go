package iap

import (
	"errors"
	"strings"
)

// Error kinds. Match them with errors.Is against any error returned to a
// completion callback.
var (
	ErrCapabilityUnavailable = errors.New("in-app purchasing is unavailable")
	ErrCatalogFetchFailed    = errors.New("catalog fetch failed")
	ErrTransactionFailed     = errors.New("transaction failed")
	ErrRestoreFailed         = errors.New("restore failed")
	ErrPersistFailed         = errors.New("failed to persist purchased products")
	ErrLoadCorrupted         = errors.New("persisted purchases are unreadable")
	ErrUnknownProduct        = errors.New("product not found in catalog")
	ErrPurchaseExpired       = errors.New("purchase expired without a platform result")
	ErrRestoreSuperseded     = errors.New("restore superseded by a newer request")
)

// Error is the error delivered to completion callbacks.
type Error struct {
	// Kind is one of the Err* values above.
	Kind error
	// ProductID is set for errors tied to a single product.
	ProductID string
	// Err is the underlying cause reported by the platform or a backend.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.ProductID != "" {
		b.WriteString(" for ")
		b.WriteString(e.ProductID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PlatformError is a failure message reported by the platform with a
// transaction or restore event.
type PlatformError struct {
	Message string
}

func (e *PlatformError) Error() string {
	return e.Message
}

// platformError converts a reported message into an error. An empty
// message still yields a non-nil error so failure paths never resolve nil.
func platformError(msg string) error {
	if msg == "" {
		msg = "platform reported failure without details"
	}
	return &PlatformError{Message: msg}
}
