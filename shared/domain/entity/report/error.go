package report

import "errors"

var (
	// State transition errors
	ErrInvalidTransition  = errors.New("invalid report state transition")
	ErrMissingDownloadURL = errors.New("report has no download url")

	// Validation errors
	ErrEmptyPostID    = errors.New("post id cannot be empty")
	ErrEmptyLocalPath = errors.New("local path cannot be empty")
	ErrUnknownStatus  = errors.New("unknown report status")
)
