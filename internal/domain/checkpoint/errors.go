package checkpoint

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrLoadCheckpoint    = errors.New("load checkpoint failed")
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)
