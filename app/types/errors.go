package types

import (
	"errors"
	"sort"
	"strings"
)

var ErrValidation = errors.New("validation failed")

// NonFieldKey collects errors that do not belong to a single form field.
const NonFieldKey = "__all__"

// FieldErrors maps a form field name to its messages, in the order added.
type FieldErrors map[string][]string

// ValidationError carries per field messages for re-rendering a form.
type ValidationError struct {
	Fields FieldErrors
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: FieldErrors{}}
}

// FieldError is shorthand for a ValidationError with a single message.
func FieldError(field, msg string) *ValidationError {
	e := NewValidationError()
	e.Add(field, msg)
	return e
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = FieldErrors{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Err returns nil when no messages were added.
func (e *ValidationError) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Get(field string) []string {
	return e.Fields[field]
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AsValidationError unwraps err into a ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
