// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrOverlapSkipped is a normal outcome, not a failure: a cycle was
// requested while the evaluation lease was already held.
var ErrOverlapSkipped = errors.New("cycle skipped: evaluation already in progress")

// DataGapError indicates insufficient observation data for an instrument.
// The instrument is skipped for the cycle; the run continues.
type DataGapError struct {
	Instrument string
	Reason     string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap [%s]: %s", e.Instrument, e.Reason)
}

// NewDataGapError creates a new DataGapError.
func NewDataGapError(instrument, reason string) *DataGapError {
	return &DataGapError{Instrument: instrument, Reason: reason}
}

// IsDataGap reports whether err is a DataGapError.
func IsDataGap(err error) bool {
	var dg *DataGapError
	return errors.As(err, &dg)
}

// ProviderError represents a failure from an external provider (a
// notification channel, or the observation store). Transient failures are
// retried per policy; permanent ones are surfaced immediately.
type ProviderError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider error [%s] (%s): %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a retryable ProviderError.
func NewTransientError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: true, Err: err}
}

// NewPermanentError creates a non-retryable ProviderError.
func NewPermanentError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: false, Err: err}
}

// IsTransient reports whether err should be retried. Timeouts count as
// transient: the provider may well have accepted the send.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// IsPermanent reports whether err is a non-retryable provider failure.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Transient
	}
	return false
}

// ConfigError represents a malformed configuration entry. Config errors are
// fatal at cycle start: no instrument is processed under a corrupt rule set.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error [%s]: %s", e.Field, e.Reason)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

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

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
