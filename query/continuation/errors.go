package continuation

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedContinuation is returned when a continuation
	// cannot be decoded, is inconsistent, was produced by a
	// different query or cannot be applied to the current
	// partition topology
	ErrMalformedContinuation = errors.New("malformed continuation")
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedContinuation, fmt.Sprintf(format, args...))
}
