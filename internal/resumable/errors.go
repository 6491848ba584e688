// Package resumable implements upload.Transport over an HTTP resumable
// upload-session protocol: create a session, PUT sequential Content-Range
// chunks to its pre-authenticated URL, and query the session to resync the
// byte cursor after any transient failure. Every exchange is a single HTTP
// request; retry timing belongs to upload.Driver.
package resumable

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Use errors.Is(err, resumable.ErrSessionExpired) to check.
var (
	ErrBadRequest          = errors.New("resumable: bad request")
	ErrUnauthorized        = errors.New("resumable: unauthorized")
	ErrForbidden           = errors.New("resumable: forbidden")
	ErrNotFound            = errors.New("resumable: not found")
	ErrThrottled           = errors.New("resumable: throttled")
	ErrServerError         = errors.New("resumable: server error")
	ErrRangeNotSatisfiable = errors.New("resumable: range not satisfiable")
	ErrSessionExpired      = errors.New("resumable: upload session expired")
	ErrUnexpectedResponse  = errors.New("resumable: unexpected response")
	ErrFileNotFound        = errors.New("file not found")
	ErrFileChanged         = errors.New("resumable: source file changed during upload")
)

// HTTPError wraps a sentinel error with the HTTP status code, the server's
// request ID and the response body for debugging.
type HTTPError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("resumable: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("resumable: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// newHTTPError builds an HTTPError from a failed response and its body.
func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		Err:        classifyStatus(resp.StatusCode),
	}
}
