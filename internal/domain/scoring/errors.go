package scoring

import (
	"errors"
	"fmt"
)

// Sentinel kinds for scoring errors.
var (
	ErrValidation = errors.New("validation failed")
	ErrInference  = errors.New("inference failed")
)

// ValidationError reports an input feature outside its declared range.
// It is returned before any standardization or forward pass.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s=%v %s", ErrValidation, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InferenceError reports a failure while standardizing or running the network.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInference, e.Op, e.Err)
}

func (e *InferenceError) Unwrap() []error { return []error{ErrInference, e.Err} }
