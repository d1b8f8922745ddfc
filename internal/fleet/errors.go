package fleet

import "errors"

// Domain errors for the fleet package.
var (
	// ErrInvalidRegistration is returned when a register intent is missing fields.
	ErrInvalidRegistration = errors.New("fleet: invalid registration")

	// ErrMalformedPayload is returned when a bus payload cannot be decoded.
	// The router drops such messages; the error only appears in debug logs.
	ErrMalformedPayload = errors.New("fleet: malformed payload")

	// ErrInvalidNamespace is returned when a topic namespace is empty or contains wildcards.
	ErrInvalidNamespace = errors.New("fleet: invalid namespace")
)
