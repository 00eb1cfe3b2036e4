package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies why a fetch failed
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindHTTPStatus  Kind = "http_status"
	KindContentType Kind = "content_type"
	KindOther       Kind = "other"
)

// Error is returned by Fetch for every failed request
type Error struct {
	Kind        Kind
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("%s: http status %d", e.URL, e.StatusCode)
	case KindContentType:
		return fmt.Sprintf("%s: unsupported content type %q", e.URL, e.ContentType)
	}
	return fmt.Sprintf("%s: %s error: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or KindOther if err is not a *Error
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// classify maps a transport error or a non-success status to an *Error
func classify(url string, status int, err error) *Error {
	fe := &Error{URL: url, StatusCode: status, Err: err}

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError

	switch {
	case status > 0:
		fe.Kind = KindHTTPStatus
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = KindTimeout
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		fe.Kind = KindConnection
	default:
		fe.Kind = KindOther
	}
	return fe
}
