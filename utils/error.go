package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrInvalidOperation is returned for transitions the entity does not support,
// e.g. Restore on an entity without soft delete.
var ErrInvalidOperation = errors.New("invalid operation")

// ValidationError carries field-level messages together with the submitted values
// so a form can be redisplayed.
type ValidationError struct {
	Fields map[string][]string
	Values map[string]any
}

func NewValidationError(values map[string]any) *ValidationError {
	return &ValidationError{Fields: map[string][]string{}, Values: values}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type InvalidIdentityError struct {
	ID string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid record id %q", e.ID)
}

type DuplicateKeyError struct {
	Field string
	Value any
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("duplicate %s: %v", e.Field, e.Value)
}

// NotFoundError covers both absent records and records in the wrong lifecycle state.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrorRecordNotFound
}

// UploadError is never returned from an operation; it is collected as a warning.
type UploadError struct {
	Field string
	File  string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s (%s): %v", e.Field, e.File, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "internal error"
	}
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// Internal wraps err unless it already belongs to the taxonomy.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		ie *InvalidIdentityError
		de *DuplicateKeyError
		ne *NotFoundError
		in *InternalError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ie), errors.As(err, &de),
		errors.As(err, &ne), errors.As(err, &in),
		errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrorRecordNotFound):
		return err
	}
	return &InternalError{Err: err}
}
