package model

import "fmt"

type ErrorType string

const (
	NetworkError    ErrorType = "network_error"
	TimeoutError    ErrorType = "timeout"
	ServerError     ErrorType = "server_error"
	AccessDenied    ErrorType = "access_denied"
	ClientError     ErrorType = "client_error"
	InvalidURLError ErrorType = "invalid_url"
	WriteError      ErrorType = "write_error"
)

// DownloadError classifies a failed request so callers can decide whether
// another attempt with the same session is worthwhile.
type DownloadError struct {
	Type       ErrorType
	Message    string
	URL        string
	StatusCode int
}

func NewDownloadError(errType ErrorType, message, url string) *DownloadError {
	return &DownloadError{
		Type:    errType,
		Message: message,
		URL:     url,
	}
}

// NewStatusError builds the error for an unexpected HTTP status.
func NewStatusError(statusCode int, url string) *DownloadError {
	errType := ClientError
	switch {
	case statusCode == 403:
		errType = AccessDenied
	case statusCode >= 500:
		errType = ServerError
	}
	return &DownloadError{
		Type:       errType,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		URL:        url,
		StatusCode: statusCode,
	}
}

func (e *DownloadError) Error() string {
	return e.Message
}

func (e *DownloadError) IsRetryable() bool {
	switch e.Type {
	case NetworkError, TimeoutError, ServerError:
		return true
	default:
		return false
	}
}
