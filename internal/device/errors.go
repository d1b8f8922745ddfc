package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidRecord is returned when record validation fails.
	ErrInvalidRecord = errors.New("device: invalid record")

	// ErrInvalidID is returned when a device ID is empty or malformed.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrIDMismatch is returned when a record's ID differs from the key it is stored under.
	ErrIDMismatch = errors.New("device: record id does not match key")
)
