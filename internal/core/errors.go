// Package core defines the fundamental types and errors for Attune.
package core

import "errors"

// Core errors that can occur across the system
var (
	// Storage errors
	ErrRecordNotFound = errors.New("record not found")

	// Feed errors
	ErrFeedUnavailable = errors.New("observation feed unavailable")
	ErrFeedPayload     = errors.New("malformed feed payload")
	ErrNotAuthorized   = errors.New("feed account not authorized")

	// Suggestion errors
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrSuggestionResolved = errors.New("suggestion already resolved")

	// Autonomy errors
	ErrInvalidLevel    = errors.New("invalid autonomy level")
	ErrInvalidActivity = errors.New("invalid activity type")
	ErrNotEligible     = errors.New("activity not eligible for promotion")

	// Validation errors
	ErrMissingRequired = errors.New("missing required field")
)
