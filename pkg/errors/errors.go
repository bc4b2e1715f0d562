// Package errors provides common domain error types for the parley service.
//
// This package defines sentinel errors for conditions the webhook router and
// its collaborators care about, like "not found" or "invalid signature".
// Using typed errors enables consistent handling with errors.Is() checks and
// lets the HTTP layer map failures to status codes in one place.
//
// Usage:
//
//	import plerrors "github.com/parleyhq/parley/pkg/errors"
//
//	// Return a domain error
//	return nil, plerrors.ErrNotFound
//
//	// Check for domain errors
//	if plerrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrMalformedPayload indicates a request body that could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrEmptyCompletion indicates the completion provider returned no usable text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrUpstream indicates a dependent external system failed.
	ErrUpstream = errors.New("upstream failure")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsMalformedPayload reports whether any error in err's chain is ErrMalformedPayload.
func IsMalformedPayload(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}

// IsEmptyCompletion reports whether any error in err's chain is ErrEmptyCompletion.
func IsEmptyCompletion(err error) bool {
	return errors.Is(err, ErrEmptyCompletion)
}

// IsUpstream reports whether any error in err's chain is ErrUpstream.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
