// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Session pool errors
	ErrPoolInit        = errors.New("session pool initialization failed")
	ErrPoolClosed      = errors.New("session pool is closed")
	ErrSessionClosed   = errors.New("session has been closed")
	ErrSessionCrashed  = errors.New("browser process crashed")
	ErrScriptFailed    = errors.New("in-page script failed")
	ErrUnknownScript   = errors.New("unknown script kind")
	ErrContextCanceled = errors.New("operation canceled")

	// Extraction errors, one per failure reason
	ErrNavigationTimeout  = errors.New("navigation timed out")
	ErrNoMediaElement     = errors.New("no media element found")
	ErrNoFetchableLocator = errors.New("no fetchable media locator")
	ErrCaptureTimeout     = errors.New("playback capture timed out")
	ErrCaptureFailed      = errors.New("playback capture failed")
	ErrInvalidTarget      = errors.New("invalid target URL")
	ErrTargetNotProcessed = errors.New("target was not processed")
	ErrCaptureTooSmall    = errors.New("captured payload below minimum size")
	ErrCaptureUndecodable = errors.New("captured payload could not be decoded")

	// Download errors
	ErrDownloadHTTP       = errors.New("download request failed")
	ErrUndersizedResponse = errors.New("response body below minimum size")
	ErrTruncatedResponse  = errors.New("response body shorter than declared length")
	ErrOversizedResponse  = errors.New("response body exceeds maximum size")
	ErrArtifactWrite      = errors.New("failed to write artifact")
	ErrInsufficientDisk   = errors.New("insufficient free disk space")
	ErrEmptyLocator       = errors.New("extraction result carries no locator")
	ErrNoTargets          = errors.New("no targets found in input")
)

// TargetError describes why one target failed. It carries the failure reason
// alongside the underlying error so callers can branch on either.
type TargetError struct {
	Reason  FailureReason // Taxonomy value recorded on the outcome
	URL     string        // The target URL
	Message string        // Human-readable error message
	Err     error         // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	if e.Err != nil && e.Message == "" {
		return string(e.Reason) + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TargetError) Unwrap() error {
	return e.Err
}

// NewTargetError builds a TargetError whose underlying error is the sentinel
// for reason, joined with cause when cause is non-nil.
func NewTargetError(reason FailureReason, url string, cause error) *TargetError {
	err := reason.Sentinel()
	switch {
	case cause == nil:
	case errors.Is(cause, err):
		// Already carries the sentinel; keep every other link in its chain.
		err = cause
	default:
		err = errors.Join(err, cause)
	}
	msg := string(reason)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", reason, cause)
	}
	return &TargetError{
		Reason:  reason,
		URL:     url,
		Message: msg,
		Err:     err,
	}
}

// PoolError provides detailed information about session pool failures.
type PoolError struct {
	Operation string // The operation that failed
	SessionID int    // Session index, -1 when not session specific
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolStartError creates an error for a session that failed to start.
func NewPoolStartError(sessionID int, err error) *PoolError {
	return &PoolError{
		Operation: "start",
		SessionID: sessionID,
		Message:   fmt.Sprintf("failed to start session %d: %v", sessionID, err),
		Err:       errors.Join(ErrPoolInit, err),
	}
}
