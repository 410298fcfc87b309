package fetch

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the fetcher.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrCooldown is returned when the origin is in a cooldown and no request was sent.
	ErrCooldown = errors.New("origin cooldown active")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a body that is not a catalog document.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassCooldown represents a request held back by the cooldown tracker.
	ErrorClassCooldown ErrorClass = "cooldown"
)

// NetworkError is returned for every failed fetch. Callers treat any
// NetworkError as "the network source produced nothing".
type NetworkError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	RetryIn    time.Duration
	Err        error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog fetch %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog fetch %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the first NetworkError in err's chain, or ""
// when there is none.
func ClassOf(err error) ErrorClass {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Class
	}
	return ""
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	case ErrorClassRateLimit:
		// the cooldown tracker owns 429 back-off
		return false
	default:
		return false
	}
}

// classifyStatus maps an HTTP status to an error class. Success and 304
// return "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
