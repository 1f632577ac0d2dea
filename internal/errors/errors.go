package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Error types for the lexmark annotation engine
type ErrorType string

const (
	// Vocabulary errors
	ErrorTypeData ErrorType = "data"

	// Tree errors
	ErrorTypeTraversal ErrorType = "traversal"
	ErrorTypeRender    ErrorType = "render"

	// Bounded resources (caches, pool)
	ErrorTypeResource ErrorType = "resource"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// DataError reports a malformed vocabulary entry. The entry is skipped.
type DataError struct {
	Type       ErrorType
	Key        string
	Field      string
	Underlying error
	Timestamp  time.Time
}

// NewDataError creates a data error for one vocabulary entry
func NewDataError(key, field string, err error) *DataError {
	return &DataError{
		Type:       ErrorTypeData,
		Key:        key,
		Field:      field,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *DataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vocabulary entry %q: field %s: %v", e.Key, e.Field, e.Underlying)
	}
	return fmt.Sprintf("vocabulary entry %q: %v", e.Key, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *DataError) Unwrap() error {
	return e.Underlying
}

// TraversalError reports a subtree that could not be walked. Its unit is marked failed.
type TraversalError struct {
	Type       ErrorType
	UnitID     uint64
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewTraversalError creates a traversal error for a processing unit
func NewTraversalError(unitID uint64, op string, err error) *TraversalError {
	return &TraversalError{
		Type:       ErrorTypeTraversal,
		UnitID:     unitID,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *TraversalError) Error() string {
	return fmt.Sprintf("%s %s failed for unit %d: %v", e.Type, e.Operation, e.UnitID, e.Underlying)
}

// Unwrap returns the underlying error
func (e *TraversalError) Unwrap() error {
	return e.Underlying
}

// RenderError reports a failed fragment swap. The original leaf is left unmodified.
type RenderError struct {
	Type       ErrorType
	Operation  string
	Text       string
	Underlying error
	Timestamp  time.Time
}

// NewRenderError creates a render error; text is truncated for logging
func NewRenderError(op, text string, err error) *RenderError {
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return &RenderError{
		Type:       ErrorTypeRender,
		Operation:  op,
		Text:       text,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *RenderError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s %s failed for %q: %v", e.Type, e.Operation, e.Text, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error
func (e *RenderError) Unwrap() error {
	return e.Underlying
}

// ResourceError describes a cache or pool that went over its bound.
// It is only ever logged; eviction handles the condition.
type ResourceError struct {
	Type      ErrorType
	Resource  string
	Size      int
	Limit     int
	Timestamp time.Time
}

// NewResourceError creates a resource exhaustion record
func NewResourceError(resource string, size, limit int) *ResourceError {
	return &ResourceError{
		Type:      ErrorTypeResource,
		Resource:  resource,
		Size:      size,
		Limit:     limit,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s over bound: %d > %d", e.Type, e.Resource, e.Size, e.Limit)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error, dropping nil entries.
// Returns nil when nothing is left so callers can return it directly.
func NewMultiError(errs []error) error {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsDataError reports whether err wraps a DataError
func IsDataError(err error) bool {
	var target *DataError
	return stderrors.As(err, &target)
}

// IsTraversalError reports whether err wraps a TraversalError
func IsTraversalError(err error) bool {
	var target *TraversalError
	return stderrors.As(err, &target)
}

// IsRenderError reports whether err wraps a RenderError
func IsRenderError(err error) bool {
	var target *RenderError
	return stderrors.As(err, &target)
}
