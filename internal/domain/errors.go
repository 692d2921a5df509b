package domain

import (
	"context"
	"errors"
	"fmt"
)

// Process exit codes, one per error kind.
const (
	ExitOK        = 0
	ExitConfig    = 1
	ExitUpstream  = 2
	ExitDatabase  = 3
	ExitCancelled = 4
)

// AppError is the base domain error type.
type AppError struct {
	Code    string
	Message string
	Exit    int
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrConfig(msg string, cause error) *AppError {
	return &AppError{Code: "CONFIG", Message: msg, Exit: ExitConfig, Cause: cause}
}

// ErrUpstream marks a transient upstream failure that survived all retries.
func ErrUpstream(msg string, cause error) *AppError {
	return &AppError{Code: "UPSTREAM", Message: msg, Exit: ExitUpstream, Cause: cause}
}

// ErrUpstreamPermanent marks a non-retryable upstream response
// (4xx other than 407/429, or an unexpected payload shape).
func ErrUpstreamPermanent(msg string, cause error) *AppError {
	return &AppError{Code: "UPSTREAM_PERMANENT", Message: msg, Exit: ExitUpstream, Cause: cause}
}

// ErrNormalize marks a market payload that could not be reduced to a
// canonical odds triple. The event is skipped, never failed permanently.
func ErrNormalize(msg string) *AppError {
	return &AppError{Code: "NORMALIZE", Message: msg, Exit: ExitUpstream}
}

func ErrDatabase(msg string, cause error) *AppError {
	return &AppError{Code: "DATABASE", Message: msg, Exit: ExitDatabase, Cause: cause}
}

// ErrNotifier marks a delivery failure. Callers log and drop it; it never
// aborts a tick.
func ErrNotifier(msg string, cause error) *AppError {
	return &AppError{Code: "NOTIFIER", Message: msg, Exit: ExitUpstream, Cause: cause}
}

func ErrCancelled() *AppError {
	return &AppError{Code: "CANCELLED", Message: "operation cancelled", Exit: ExitCancelled}
}

// ExitCode maps an error to the process exit code, walking the wrap chain.
// Unclassified errors report as configuration failures since they can only
// arise during boot wiring.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.Exit
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitConfig
}
