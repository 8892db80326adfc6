package fetch

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrRequiredSource aborts the run: the entity graph cannot be built
	// without the named source.
	ErrRequiredSource = errors.New("required source unavailable")

	// ErrFetchFailed wraps transport-level fetch failures.
	ErrFetchFailed = errors.New("fetch failed")
)
