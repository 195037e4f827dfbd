// Package apperr defines the error taxonomy shared by the store, the entry
// service and the transports.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")

	ErrStorage      = errors.New("storage failure")
	ErrImportFormat = errors.New("invalid import format")
	ErrValidation   = errors.New("validation failed")
)

// StorageError reports a failure of the underlying storage engine.
// Callers must not assume the operation partially succeeded.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err as a StorageError for op. A nil err returns nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ImportFormatError reports an import payload that is not a JSON array of entries.
type ImportFormatError struct {
	Reason string
	Err    error
}

func (e *ImportFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import: %s: %v", e.Reason, e.Err)
	}
	return "import: " + e.Reason
}

func (e *ImportFormatError) Unwrap() error { return e.Err }

func (e *ImportFormatError) Is(target error) bool { return target == ErrImportFormat }

// ValidationError lists field-level problems keyed by field path
// (for example "metrics.agency").
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError with a single field problem.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Validation converts an ozzo-validation result into a ValidationError.
// A nil err returns nil; non-validation errors are returned unchanged.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var single validation.Error
		if errors.As(err, &single) {
			return NewValidationError("value", single.Error())
		}
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	flatten("", errs, out.Fields)
	return out
}

func flatten(prefix string, errs validation.Errors, into map[string]string) {
	for field, err := range errs {
		if err == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(key, nested, into)
			continue
		}
		into[key] = err.Error()
	}
}

// Prefix returns a copy of e with every field path prefixed.
func (e *ValidationError) Prefix(prefix string) *ValidationError {
	out := &ValidationError{Fields: make(map[string]string, len(e.Fields))}
	for k, v := range e.Fields {
		out.Fields[prefix+"."+k] = v
	}
	return out
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
