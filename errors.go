package visionrouter

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrConfiguration   = errors.New("visionrouter: configuration error")
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrConfiguration)
	ErrUnknownModel    = fmt.Errorf("%w: unknown model", ErrConfiguration)

	ErrQuotaExceeded = errors.New("visionrouter: quota exceeded")

	ErrProviderUnavailable   = errors.New("visionrouter: provider unavailable")
	ErrProviderNotConfigured = fmt.Errorf("%w: provider not configured", ErrProviderUnavailable)
	ErrRateLimited           = fmt.Errorf("%w: rate limited by provider", ErrProviderUnavailable)
	ErrAuthFailed            = fmt.Errorf("%w: authentication failed", ErrProviderUnavailable)
	ErrProviderRejected      = fmt.Errorf("%w: request rejected by provider", ErrProviderUnavailable)
	ErrEmptyResponse         = fmt.Errorf("%w: empty response", ErrProviderUnavailable)

	ErrInvalidInput = errors.New("visionrouter: invalid input")
)

// ErrorKind classifies a failure for callers that map results to a
// transport status.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindConfiguration       ErrorKind = "configuration"
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindCanceled            ErrorKind = "canceled"
	KindInternal            ErrorKind = "internal"
)

// KindOf returns the kind of err. Errors that match no sentinel are
// reported as KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	default:
		return KindInternal
	}
}

// RouterError wraps a dispatch failure with routing context.
type RouterError struct {
	Err      error
	Provider string
	Model    string
	Attempts int

	// FallbackErr is set when the default model was tried as well and
	// failed. Err still carries the primary failure.
	FallbackErr error
}

func (e *RouterError) Error() string {
	msg := fmt.Sprintf("visionrouter: provider=%s model=%s attempts=%d: %v",
		e.Provider, e.Model, e.Attempts, e.Err)
	if e.FallbackErr != nil {
		msg += fmt.Sprintf(" (fallback: %v)", e.FallbackErr)
	}
	return msg
}

func (e *RouterError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must not be retried against the
// default model.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrQuotaExceeded)
}

// IsRetryable returns true if the error may trigger a fallback.
func IsRetryable(err error) bool {
	return err != nil && !IsFatal(err)
}
