package analytics

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrComputeFailed marks one operator's analytics failure; the run
	// continues with default fields for that operator.
	ErrComputeFailed = errors.New("analytics compute failed")

	// ErrCorruptState marks corrupted shared state; the run aborts.
	ErrCorruptState = errors.New("corrupted shared state")
)
