package model

// MaxProductIDLength is the longest product identifier the storefront
// accepts. Longer values are never valid purchases.
const MaxProductIDLength = 100

// Product is a catalog entry as returned by the catalog service.
type Product struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	DisplayPrice string `json:"display_price,omitempty" yaml:"display_price,omitempty"`
	Currency     string `json:"currency,omitempty" yaml:"currency,omitempty"`
}
