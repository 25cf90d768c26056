package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"transitquery/internal/reply"
)

var (
	// ErrNotFound reports that a provider has no data for the query.
	ErrNotFound = errors.New("not found")
	// ErrMissingIdentifier reports a location without the identifier a provider needs.
	ErrMissingIdentifier = errors.New("location has no usable identifier")
)

// StatusError is returned for non-2xx HTTP responses. Body holds the
// (size-limited) response payload for providers that put error details there.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// Coder is implemented by errors that know their reply error code.
type Coder interface {
	ErrorCode() reply.ErrorCode
}

// ErrorCodeFor maps an error from a query attempt to the code reported into
// the reply.
func ErrorCodeFor(err error) reply.ErrorCode {
	if err == nil {
		return reply.NoError
	}

	var coder Coder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			return reply.NotFoundError
		}
		return reply.NetworkError
	}

	if errors.Is(err, ErrNotFound) {
		return reply.NotFoundError
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return reply.NetworkError
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return reply.NetworkError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return reply.NetworkError
	}

	return reply.UnknownError
}
