package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindAuth
	KindForbidden
	KindNotFound
	KindRateLimited
	KindServer
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindTransport:   "transport",
	KindAuth:        "auth",
	KindForbidden:   "forbidden",
	KindNotFound:    "not_found",
	KindRateLimited: "rate_limited",
	KindServer:      "server",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == 0:
		return KindTransport
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status, zero when no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s error (%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text for the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindTransport:
		return "Network error, check your internet connection"
	case KindAuth:
		return "Authentication error, try again later"
	case KindForbidden:
		return "Access denied, insufficient permission"
	case KindNotFound:
		return "No data found"
	case KindRateLimited:
		return "Too many requests, wait a moment"
	case KindServer:
		return "Server error, try again later"
	default:
		return "Unknown error"
	}
}

// KindOf returns the kind of a provider error, or KindUnknown.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}
