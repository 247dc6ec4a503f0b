package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// Failure kinds. A FetchError matches its kind with errors.Is.
var (
	ErrTimeout      = errors.New("timeout")
	ErrConnection   = errors.New("connection")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrRateLimited  = errors.New("rate_limited")
	ErrServer       = errors.New("server")
)

// FetchError describes a storefront request that did not produce a body.
type FetchError struct {
	URL    string
	Status int
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	kind := "other"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// classifyError attaches a failure kind to err. statusCode is zero when no
// response was received.
func classifyError(target string, err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}

	fe := &FetchError{URL: target, Status: statusCode, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = ErrTimeout
	case errors.As(err, &opErr):
		fe.Kind = ErrConnection
	case statusCode == http.StatusUnauthorized:
		fe.Kind = ErrUnauthorized
	case statusCode == http.StatusForbidden:
		fe.Kind = ErrForbidden
	case statusCode == http.StatusNotFound:
		fe.Kind = ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		fe.Kind = ErrRateLimited
	case statusCode >= http.StatusInternalServerError:
		fe.Kind = ErrServer
	}
	return fe
}

var errorKinds = []error{
	ErrTimeout, ErrConnection, ErrUnauthorized, ErrForbidden,
	ErrNotFound, ErrRateLimited, ErrServer,
}

// errorTypeLabel is the metric label for a classified error.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "other"
}

// retryable reports whether another attempt could succeed: timeouts,
// dropped connections, rate limiting and server errors. Other statuses and
// unclassified failures will not change on a retry.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, colly.ErrForbiddenDomain) {
		return false
	}
	for _, kind := range []error{ErrTimeout, ErrConnection, ErrRateLimited, ErrServer} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
