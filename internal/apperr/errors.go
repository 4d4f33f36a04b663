// Package apperr defines the error taxonomy shared by the payment core.
// Services wrap these with fmt.Errorf("...: %w", err); the API layer maps
// them to HTTP status codes with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed input shapes and identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown transactions, orders and download tokens.
	ErrNotFound = errors.New("not found")

	// ErrBookNotFound is returned when a referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrInvalidBookState is returned when a book exists but cannot be
	// purchased (inactive, free book on the paid path, or the reverse).
	ErrInvalidBookState = errors.New("book not purchasable")

	// ErrForbidden is returned when a non-admin principal invokes an
	// admin-only operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when a payment status update does
	// not follow a legal state-machine edge. The record is not mutated.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrSigning is returned when the checksum signer is unreachable or
	// misconfigured.
	ErrSigning = errors.New("request signing failed")

	// ErrIntegrity is returned when a callback signature does not verify
	// or the callback is a replay. Always fail closed.
	ErrIntegrity = errors.New("callback integrity check failed")

	// ErrExpired is returned when a download token is redeemed after its
	// validity window.
	ErrExpired = errors.New("download entitlement expired")

	// ErrQuotaExceeded is returned when a download token has no
	// redemptions left.
	ErrQuotaExceeded = errors.New("download quota exceeded")

	// ErrGatewayUnavailable is returned on gateway timeouts and 5xx
	// responses. Retryable by the caller, never retried internally.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ProtectedStateError is returned when a delete touches COMPLETED or
// REFUNDED transactions without the force flag. It carries the counts the
// bulk endpoints report back to the operator.
type ProtectedStateError struct {
	Protected int
	Total     int
}

func (e *ProtectedStateError) Error() string {
	return fmt.Sprintf("%d of %d transactions carry live entitlement; force flag required", e.Protected, e.Total)
}
