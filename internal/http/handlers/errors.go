// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail() helper
// in this package. They give the Bitrix24 caller (and anyone curl-ing the
// service) a stable, machine-readable taxonomy alongside the human-readable
// message. Codes are lowercase snake_case and mirror common HTTP semantics.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
)
