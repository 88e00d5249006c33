// Package errors provides error classification for the delivery core.
// Errors crossing the retry and circuit breaker layers carry a Kind so both
// can decide whether a failure is transient, terminal, or should be excluded
// from fault accounting.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes a delivery failure.
type Kind string

const (
	// KindNetwork indicates a connection-level failure (dial, reset, DNS).
	KindNetwork Kind = "network"
	// KindTimeout indicates the request or context deadline expired.
	KindTimeout Kind = "timeout"
	// KindServer indicates a 5xx response from the remote endpoint.
	KindServer Kind = "server"
	// KindClient indicates a non-retryable 4xx response.
	KindClient Kind = "client"
	// KindRateLimit indicates the remote endpoint is throttling (429).
	KindRateLimit Kind = "rate_limit"
	// KindAuth indicates an authentication or authorization failure (401/403).
	KindAuth Kind = "auth"
	// KindValidation indicates a response that parsed cleanly but reports an
	// application-level error. Deterministic, never retried.
	KindValidation Kind = "validation"
	// KindUnknown is used when no more specific kind applies.
	KindUnknown Kind = "unknown"
)

// Classified wraps an error with its kind and retry semantics.
type Classified struct {
	Kind       Kind
	Err        error
	Retryable  bool
	StatusCode int // HTTP status when applicable, zero otherwise
}

// Error implements the error interface.
func (e *Classified) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (%d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Classified) Unwrap() error { return e.Err }

// FailureKind returns the error kind.
func (e *Classified) FailureKind() Kind { return e.Kind }

// Classify wraps err with the given kind and retryability.
func Classify(kind Kind, err error, retryable bool) *Classified {
	return &Classified{Kind: kind, Err: err, Retryable: retryable}
}

// ClassifyStatus derives a Classified error from an HTTP status code.
// 5xx and 429 are retryable; other 4xx are deterministic client failures.
func ClassifyStatus(statusCode int, err error) *Classified {
	c := &Classified{Err: err, StatusCode: statusCode}
	switch {
	case statusCode == 429:
		c.Kind = KindRateLimit
		c.Retryable = true
	case statusCode == 401 || statusCode == 403:
		c.Kind = KindAuth
	case statusCode >= 400 && statusCode < 500:
		c.Kind = KindClient
	case statusCode >= 500:
		c.Kind = KindServer
		c.Retryable = true
	default:
		c.Kind = KindUnknown
	}
	return c
}

// kinder is implemented by errors that know their own kind.
type kinder interface {
	FailureKind() Kind
}

// KindOf reports the kind of err, unwrapping as needed.
// Context cancellation maps to KindTimeout; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinder
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether err represents a transient failure worth
// retrying. Unclassified errors default to retryable except for context
// cancellation, matching the behavior of the HTTP execution layer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var c *Classified
	if errors.As(err, &c) {
		return c.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
