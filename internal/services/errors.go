// Package services defines the business logic of the relay. This file
// centralizes service-level error values so they can be consistently
// returned by service methods and checked by callers with errors.Is.
package services

import "errors"

var (
	// ErrTenantNotFound indicates no directory row matches the caller's
	// member id. TenantDirectory implementations may return it (or the
	// underlying store's not-found sentinel); the pipeline treats both as a
	// benign skip, not an integration failure.
	ErrTenantNotFound = errors.New("tenant not found")
)
