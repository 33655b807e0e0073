package uid

import (
	"strings"

	"github.com/google/uuid"
)

// HandlePrefix marks identifiers issued for catalog requests.
const HandlePrefix = "cat_"

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// Handle generates an opaque handle used to correlate a catalog fetch with
// its asynchronous response.
func Handle() string {
	return HandlePrefix + uuid.NewString()
}

// IsValid checks if a string is a valid UUID or catalog handle.
func IsValid(id string) bool {
	_, err := uuid.Parse(strings.TrimPrefix(id, HandlePrefix))
	return err == nil
}
