package hub

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConnection     = errors.New("connection to hub failed")
	ErrAuthentication = errors.New("authentication with hub failed, check the api key")
	ErrRejected       = errors.New("hub rejected the request")
	ErrUnavailable    = errors.New("hub unavailable")
)

type Kind string

const (
	KindRegistration Kind = "registration"
	KindSync         Kind = "sync"
	KindMetrics      Kind = "metrics"
	KindHealth       Kind = "health"
)

// Error is returned by every failed hub call.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("hub %s failed", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed:
// transport failures, 5xx and 429. Other 4xx are final.
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 {
		return errors.Is(e.Err, ErrConnection)
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func causeForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
