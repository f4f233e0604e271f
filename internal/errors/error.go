// Package errors provides the error taxonomy of the catalog service.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrProductNotFound = errors.New("product not found")

// ErrValidation marks a missing or malformed required field.
var ErrValidation = errors.New("validation failed")

// ErrUnsupportedMedia marks an upload that is not a jpg/jpeg/png image.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// ErrStorage marks a blob write or delete failure.
var ErrStorage = errors.New("storage error")

var ErrOptimisticLock = errors.New("optimistic lock error: the record has been modified by another request")

// ValidationError carries per-field rule violations. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
