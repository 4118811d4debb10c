package download

import (
	"errors"
)

var (
	// State transition errors
	ErrAlreadyCompleted       = errors.New("download already completed")
	ErrInvalidStateTransition = errors.New("invalid download state transition")

	// Retry/attempt errors
	ErrMaxAttemptsExceeded = errors.New("maximum download attempts exceeded")

	// Validation errors
	ErrEmptyFile = errors.New("downloaded file is empty")
)
