package adapters

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider request failures.
type ErrorKind string

const (
	KindNotConfigured ErrorKind = "not_configured"
	KindRateLimit     ErrorKind = "rate_limit"
	KindTransport     ErrorKind = "transport"
)

// Sentinels for errors.Is; an *APIError matches the sentinel of its Kind.
var (
	ErrNotConfigured = errors.New("api client not configured")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrTransport     = errors.New("provider transport error")
)

// APIError is returned by the provider clients.
type APIError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int         // upstream HTTP status, 0 when no response arrived
	Reason     LimitReason // set for KindRateLimit
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindTransport:
		if e.Cause != nil {
			return fmt.Sprintf("%s API error: %d - %s (%v)", e.Provider, e.StatusCode, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotConfigured:
		return e.Kind == KindNotConfigured
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

func NewNotConfiguredError(provider, message string) *APIError {
	return &APIError{Kind: KindNotConfigured, Provider: provider, Message: message}
}

func NewRateLimitError(provider string, reason LimitReason, message string) *APIError {
	return &APIError{Kind: KindRateLimit, Provider: provider, Reason: reason, Message: message}
}

func NewTransportError(provider string, status int, message string, cause error) *APIError {
	return &APIError{Kind: KindTransport, Provider: provider, StatusCode: status, Message: message, Cause: cause}
}
