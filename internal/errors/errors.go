// Package errors holds the error definitions shared by every pas package.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
// - A collector for configuration validation errors

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Configuration errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrUnknownFormat   = errors.New("unknown archive format")
	ErrUnknownDriver   = errors.New("unknown source driver")

	// Sampling errors
	ErrUnknownCategory = errors.New("unknown category")
	ErrFetchTimeout    = errors.New("fetch timed out")
	ErrFetchPanic      = errors.New("fetch panicked")
	ErrNoRows          = errors.New("query returned no rows")

	// Archive errors
	ErrCorruptArchive  = errors.New("corrupt archive")
	ErrDigestMismatch  = errors.New("archive digest mismatch")
	ErrUnsupportedFile = errors.New("unsupported archive file")
	ErrWindowExists    = errors.New("archive window already written")
	ErrArchiveWrite    = errors.New("archive write failed")

	// Query errors
	ErrNoParquetWindows = errors.New("archive has no parquet windows")

	// Source errors
	ErrConnectionFailed = errors.New("connection failed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrUnknownFormat) ||
		errors.Is(err, ErrUnknownDriver)
}

// IsCorrupt returns true if err means an archive file could not be trusted.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptArchive) ||
		errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrUnsupportedFile)
}

// IsRetriable returns true if the failed operation may succeed on the next tick.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrFetchTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrNoRows)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewCorrupt marks a decode failure of the named archive file.
func NewCorrupt(path string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", path, ErrCorruptArchive)
	}
	return fmt.Errorf("%s: %w: %v", path, ErrCorruptArchive, cause)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if there are no errors, otherwise returns the collector.
func (v *ValidationErrors) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
