// Package common defines shared constants and sentinel errors used across
// the FileVault server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors (malformed or missing input).
	ErrorBadRequest = errors.New("bad request")

	// Access errors (valid request, disallowed action).
	ErrorForbidden = errors.New("forbidden")

	// Share-code issuance errors (generation bound exceeded).
	ErrorResourceExhausted = errors.New("resource exhausted")
)
