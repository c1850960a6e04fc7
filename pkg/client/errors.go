package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// MaxBatchRecords is the sink's hard limit on records per POST.
const MaxBatchRecords = 100

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchRecords.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrDecode is returned when a response body cannot be decoded.
	ErrDecode = errors.New("decode response")
)

// ErrorClass represents a classification of call failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents unreadable response bodies.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassRequest represents local failures: building the request,
	// waiting on the rate limiter, unsupported URLs.
	ErrorClassRequest ErrorClass = "request"
)

// StatusError is a non-2xx response from the Animals API.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("API %s error (status %d): %s %s: %s",
		e.ErrorClass, e.StatusCode, e.Method, e.Endpoint, e.Message)
}

// TransportError is the failure of one transport call, surfaced after retries
// were exhausted or a terminal condition was hit. Err holds the last cause.
type TransportError struct {
	Op       string
	Endpoint string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Op, e.Endpoint, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is a local rejection raised before any network call.
type ValidationError struct {
	Field string
	Limit int
	Got   int
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is %d, limit is %d", e.Field, e.Got, e.Limit)
}

// Unwrap reports ErrBatchTooLarge so callers can match with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrBatchTooLarge
}

// retryableStatus is the set of HTTP statuses treated as transient.
var retryableStatus = map[int]bool{
	500: true,
	502: true,
	503: true,
	504: true,
}

// requestError marks a failure that happened before the request reached the
// network. It is never retried.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

// classifyError categorizes an error for metrics and retry decisions.
func classifyError(err error) ErrorClass {
	var se *StatusError
	var re *requestError
	switch {
	case errors.As(err, &se):
		return se.ErrorClass
	case errors.Is(err, ErrDecode):
		return ErrorClassDecode
	case errors.As(err, &re):
		return ErrorClassRequest
	case isNetworkError(err):
		return ErrorClassNetwork
	default:
		return ErrorClassRequest
	}
}

// isNetworkError reports connection failures and timeouts.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classifyStatus maps an HTTP status code to its error class.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// IsTransient reports whether err should be retried: connection failures,
// timeouts and HTTP 500/502/503/504. Everything else, including errors raised
// before the request left the process, is terminal.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrBatchTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus[se.StatusCode]
	}
	return classifyError(err) == ErrorClassNetwork
}
