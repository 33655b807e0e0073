package cache

import "iap-coordinator/internal/model"

// ProductCache holds catalog products that were already resolved, keyed by
// product identifier. Implementations must be safe for concurrent use.
type ProductCache interface {
	// Get returns the cached product for id.
	Get(id string) (model.Product, bool)

	// Put stores products, replacing entries with the same identifier.
	Put(products ...model.Product)

	// Len returns the number of live entries.
	Len() int

	// Clear removes all entries from the cache.
	Clear()
}
