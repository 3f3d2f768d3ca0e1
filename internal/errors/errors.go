// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeTransfer indicates a truncated or corrupt report download
	TypeTransfer Type = "TRANSFER_ERROR"

	// TypeParsing indicates malformed tabular content
	TypeParsing Type = "PARSE_ERROR"

	// TypeRateQuery indicates an auth, network or decoding failure against the metering API
	TypeRateQuery Type = "RATE_QUERY_ERROR"

	// TypeDataQuality marks non-fatal findings such as unmapped conversions or rates
	TypeDataQuality Type = "DATA_QUALITY_WARNING"

	// TypeWrite indicates the cost artifact could not be persisted
	TypeWrite Type = "WRITE_ERROR"

	// TypeProgress indicates the progress marker could not be loaded or advanced
	TypeProgress Type = "PROGRESS_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error must halt the run.
func (e *Error) Fatal() bool {
	return e.Type != TypeDataQuality
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// IsType checks if an error, or any error it wraps, is of a specific type
func IsType(err error, t Type) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// TypeOf returns the type of the outermost *Error in the chain, or TypeInternal.
func TypeOf(err error) Type {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// Transfer creates a transfer error
func Transfer(message string, cause error) *Error {
	return Wrap(TypeTransfer, message, cause)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// RateQuery creates a rate query error
func RateQuery(message string, cause error) *Error {
	return Wrap(TypeRateQuery, message, cause)
}

// DataQuality creates a data quality warning
func DataQuality(message string) *Error {
	return New(TypeDataQuality, message)
}

// Write creates an output write error
func Write(message string, cause error) *Error {
	return Wrap(TypeWrite, message, cause)
}

// Progress creates a progress marker error
func Progress(message string, cause error) *Error {
	return Wrap(TypeProgress, message, cause)
}

// Config creates a configuration error
func Config(message string) *Error {
	return New(TypeConfig, message)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
