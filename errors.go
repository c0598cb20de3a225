package gpatx

import (
	"errors"
	"fmt"
	"strings"
)

// =====================================
// Error Handling
// =====================================

// Error represents a gpatx-specific error
type Error struct {
	Type       ErrorType
	Datasource string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e Error) Error() string {
	msg := e.Message
	if e.Datasource != "" {
		msg = fmt.Sprintf("[%s] %s", e.Datasource, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e Error) Is(target error) bool {
	if targetErr, ok := target.(Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// NewError creates a new Error
func NewError(errorType ErrorType, message string) Error {
	return Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with a cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) Error {
	return Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// newDatasourceError creates an Error attributed to a datasource
func newDatasourceError(errorType ErrorType, datasource, message string, cause error) Error {
	return Error{
		Type:       errorType,
		Datasource: datasource,
		Message:    message,
		Cause:      cause,
	}
}

// AggregateError is returned when a finalize operation fails on two or more
// participants. Every individual failure is kept.
type AggregateError struct {
	Operation string
	Failures  []Error
}

// Error implements the error interface
func (e AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s failed for %d datasources", ErrorTypeAggregate, e.Operation, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes every failure to errors.Is and errors.As
func (e AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Datasources returns the names of the failed datasources in failure order
func (e AggregateError) Datasources() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Datasource
	}
	return names
}

// combineFailures turns the failures of one finalize pass into the error the
// caller sees: nil, the single failure, or an AggregateError.
func combineFailures(operation string, failures []Error) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return AggregateError{Operation: operation, Failures: failures}
	}
}

// asError extracts an Error from err, or wraps a foreign error as the given type
func asError(err error, errorType ErrorType, datasource, message string) Error {
	var e Error
	if errors.As(err, &e) {
		if e.Datasource == "" {
			e.Datasource = datasource
		}
		return e
	}
	return newDatasourceError(errorType, datasource, message, err)
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsDuplicate checks if an error is a "duplicate" error
func IsDuplicate(err error) bool {
	return IsErrorType(err, ErrorTypeDuplicate)
}

// IsConnection checks if an error is a "connection" error
func IsConnection(err error) bool {
	return IsErrorType(err, ErrorTypeConnection)
}

// IsConfiguration checks if an error is a "configuration" error
func IsConfiguration(err error) bool {
	return IsErrorType(err, ErrorTypeConfiguration)
}

// IsTransaction checks if an error is a "transaction" error
func IsTransaction(err error) bool {
	return IsErrorType(err, ErrorTypeTransaction)
}

// IsAggregate checks if an error carries failures of several datasources
func IsAggregate(err error) bool {
	var agg AggregateError
	return errors.As(err, &agg)
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}
