package models

import "errors"

// ErrNotFound is returned when an entity does not exist in the store, or
// exists under a different tenant. Callers must not be able to distinguish
// the two cases.
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned when a conditional insert loses (e.g. a sync job
// of the same type is already running for the tenant).
var ErrConflict = errors.New("conflicting entity already exists")
