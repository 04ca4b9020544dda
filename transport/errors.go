package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jrife/xpquery/partition"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrStateNotMappable is returned when a resumption state
	// issued for one range cannot be honored for another range,
	// such as a child range after a split
	ErrStateNotMappable = errors.New("resumption state cannot be mapped to range")
)

// SplitError is returned when the requested range no longer
// exists because it was split. Children are the ranges that
// now cover it.
type SplitError struct {
	Range    partition.Range
	Children []partition.Range
}

func (err *SplitError) Error() string {
	children := make([]string, 0, len(err.Children))

	for _, child := range err.Children {
		children = append(children, child.String())
	}

	return fmt.Sprintf("range %s was split into %s", err.Range, strings.Join(children, ", "))
}

// TransientError marks an error as safe to retry
type TransientError struct {
	Err error
}

func (err *TransientError) Error() string {
	return "transient: " + err.Err.Error()
}

func (err *TransientError) Unwrap() error {
	return err.Err
}

// Transient wraps err so that IsTransient reports true for it
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{Err: err}
}

type grpcStatus interface {
	GRPCStatus() *status.Status
}

// IsTransient returns true if retrying the request that
// produced err may succeed. Errors wrapped with Transient
// and gRPC errors with codes Unavailable, ResourceExhausted
// or Aborted are transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientError *TransientError

	if errors.As(err, &transientError) {
		return true
	}

	var statusError grpcStatus

	if errors.As(err, &statusError) {
		switch statusError.GRPCStatus().Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}

	return false
}

// IsSplit returns the split error in err's chain, if any
func IsSplit(err error) (*SplitError, bool) {
	var splitError *SplitError

	if errors.As(err, &splitError) {
		return splitError, true
	}

	return nil, false
}
