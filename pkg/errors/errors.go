// Package errors defines unified error types for memory tier operations.
// All backend-specific failures are mapped to these standard error types so
// callers can branch on outcome class instead of driver errors.
package errors

import (
	"errors"
	"fmt"
)

// MemoryError represents a standardized error from a memory tier.
// It contains all necessary information for error handling, logging, and
// degradation decisions.
type MemoryError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Tier      string `json:"tier"`
	Key       string `json:"key,omitempty"`
	Retryable bool   `json:"-"`
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s (tier=%s, key=%s)", e.Type, e.Message, e.Tier, e.Key)
	}
	return fmt.Sprintf("[%s] %s (tier=%s)", e.Type, e.Message, e.Tier)
}

// Common error types as constants for consistency.
const (
	TypeNotFound     = "not_found"
	TypeUnauthorized = "unauthorized"
	TypeTransient    = "transient_failure"
	TypeCorruption   = "corruption"
	TypeLearning     = "learning_failure"
	TypeConfig       = "config_error"
	TypeInternal     = "internal_error"
)

// Tier names used in error reports and health checks.
const (
	TierCache   = "cache"
	TierSession = "session"
	TierHistory = "history"
	TierPattern = "pattern"
)

// NewNotFound creates a not-found error. Not-found is an expected outcome for
// lookups and most call sites should prefer a nil result over this error; it
// exists for paths where absence must abort (e.g. updating a missing record).
func NewNotFound(tier, key, message string) *MemoryError {
	return &MemoryError{
		Type:      TypeNotFound,
		Message:   message,
		Tier:      tier,
		Key:       key,
		Retryable: false,
	}
}

// NewUnauthorized creates an ownership-mismatch error. These are rejected
// without side effects.
func NewUnauthorized(tier, key, message string) *MemoryError {
	return &MemoryError{
		Type:      TypeUnauthorized,
		Message:   message,
		Tier:      tier,
		Key:       key,
		Retryable: false,
	}
}

// NewTransient creates a transient connectivity error. Callers may retry or
// degrade; these never cross a tier boundary as a raised failure on
// best-effort paths.
func NewTransient(tier, message string, cause error) *MemoryError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &MemoryError{
		Type:      TypeTransient,
		Message:   message,
		Tier:      tier,
		Retryable: true,
	}
}

// NewCorruption creates a deserialization/corruption error. Cache callers
// treat these as a miss; durable stores log them as anomalies.
func NewCorruption(tier, key, message string) *MemoryError {
	return &MemoryError{
		Type:      TypeCorruption,
		Message:   message,
		Tier:      tier,
		Key:       key,
		Retryable: false,
	}
}

// NewLearning wraps a pattern-engine failure. Always swallowed and logged by
// the coordinator.
func NewLearning(message string, cause error) *MemoryError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &MemoryError{
		Type:      TypeLearning,
		Message:   message,
		Tier:      TierPattern,
		Retryable: false,
	}
}

// NewConfig creates a startup configuration error. The only fatal class.
func NewConfig(message string) *MemoryError {
	return &MemoryError{
		Type:      TypeConfig,
		Message:   message,
		Tier:      "config",
		Retryable: false,
	}
}

// NewInternal creates an internal error for unexpected conditions.
func NewInternal(tier, message string, cause error) *MemoryError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &MemoryError{
		Type:      TypeInternal,
		Message:   message,
		Tier:      tier,
		Retryable: false,
	}
}

func isType(err error, errType string) bool {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Type == errType
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return isType(err, TypeNotFound) }

// IsUnauthorized reports whether err is an ownership-mismatch error.
func IsUnauthorized(err error) bool { return isType(err, TypeUnauthorized) }

// IsTransient reports whether err is a retryable connectivity failure.
func IsTransient(err error) bool { return isType(err, TypeTransient) }

// IsCorruption reports whether err is a deserialization failure.
func IsCorruption(err error) bool { return isType(err, TypeCorruption) }
