package producer

import (
	"errors"
)

var (
	// ErrFetchInFlight is returned when a fetch is started
	// while another fetch of the same producer is in progress
	ErrFetchInFlight = errors.New("a fetch is already in flight")
	// ErrNothingToFetch is returned when a fetch is started
	// on a producer that is exhausted or waiting to be
	// replaced by its split children
	ErrNothingToFetch = errors.New("producer has nothing to fetch")
	// ErrForeignResult is returned when a producer is asked
	// to complete a fetch it did not begin
	ErrForeignResult = errors.New("result belongs to another producer")
)
