package model

import "net/http"

// Page is a fully read response to a page request.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}
