// Package upstream holds what the gateway needs to talk to its upstreams:
// the normalized Query, the Fetcher contract, the error taxonomy and the
// Timeout/Retry Executor.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ClassTimeout is a per-attempt deadline overrun. Not retried locally.
	ClassTimeout ErrorClass = "timeout"

	// ClassServer represents 5xx-equivalent failures. Retried locally.
	ClassServer ErrorClass = "server"

	// ClassAuth represents 401/403-equivalent failures. Escalated immediately.
	ClassAuth ErrorClass = "auth"

	// ClassClient represents other 4xx-equivalent failures.
	ClassClient ErrorClass = "client"

	// ClassMalformed represents a response of unexpected shape.
	ClassMalformed ErrorClass = "malformed"

	// ClassNetwork represents connection-level failures. Retried locally.
	ClassNetwork ErrorClass = "network"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Retryable reports whether errors of this class are retried by the Executor.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassServer, ClassNetwork:
		return true
	default:
		return false
	}
}

// Error is an upstream failure with its classification.
type Error struct {
	Source     string
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// NewError builds a classified upstream error.
func NewError(source string, class ErrorClass, status int, message string, err error) *Error {
	return &Error{
		Source:     source,
		Class:      class,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Source, e.Class)
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

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the class of err. Unclassified errors count as network
// failures, deadline overruns as timeouts.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassNetwork
}

// ClassForStatus maps an HTTP status code to an error class.
// Returns "" for non-error statuses.
func ClassForStatus(status int) ErrorClass {
	switch {
	case status == 401 || status == 403:
		return ClassAuth
	case status == 429:
		return ClassServer
	case status >= 400 && status < 500:
		return ClassClient
	case status >= 500:
		return ClassServer
	default:
		return ""
	}
}
