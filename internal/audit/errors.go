package audit

import "errors"

// ErrInvalidEntry indicates an entry without an action or source.
var ErrInvalidEntry = errors.New("audit: action and source are required")
