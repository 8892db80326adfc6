package render

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrJobFailed marks a permanent per-job failure after the single retry.
	ErrJobFailed = errors.New("render job failed")
)
