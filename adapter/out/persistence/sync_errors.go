package persistence

import (
	"errors"

	"mailsync_server/core/port/out"
)

// Common persistence errors
var (
	// ErrNotFound aliases the port sentinel so callers on either side of the
	// boundary match the same error.
	ErrNotFound  = out.ErrNotFound
	ErrDuplicate = errors.New("duplicate entry")
)
