package mapdata

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameters = errors.New("invalid map parameters")
	ErrUnknownParameter  = errors.New("unknown map parameter")
	ErrParameterType     = errors.New("wrong type for map parameter")
)

// ParameterError reports which parameter was rejected and why. It matches
// ErrInvalidParameters under errors.Is.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidParameters, e.Field, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameters
}

func invalid(field, format string, args ...any) error {
	return &ParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
