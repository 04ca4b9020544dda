// Package page describes the unit of data returned by one request
// against one partition key range, together with the opaque state
// needed to fetch the next one.
package page

import (
	"fmt"
	"math"

	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/partition"
)

// State is the resumption state of a partition key range. Token
// is opaque to everything except the transport that issued it.
// A state is only ever fed back for the range it was issued for.
type State struct {
	Range partition.Range
	Token []byte
}

// ExecutionInfo describes how the store executed the
// request that produced a page
type ExecutionInfo struct {
	// ReverseOrder is true if the store returned results
	// in the reverse of its native order
	ReverseOrder bool
	// ReverseIndexScan is true if the store scanned
	// its index backwards
	ReverseIndexScan bool
}

// Page is an immutable batch of results. S is the type of
// its resumption state. A page without a state marks the
// end of its source.
type Page[S any] struct {
	items             []document.Document
	requestCharge     float64
	activityID        string
	responseSizeBytes int64
	executionInfo     *ExecutionInfo
	state             *S
}

// New creates a page. items are copied so the caller may reuse
// the slice. A nil state means the source is exhausted.
func New[S any](items []document.Document, requestCharge float64, activityID string, responseSizeBytes int64, state *S) (Page[S], error) {
	if math.IsNaN(requestCharge) || requestCharge < 0 {
		return Page[S]{}, fmt.Errorf("%w: request charge %v", ErrProtocolViolation, requestCharge)
	}

	if responseSizeBytes < 0 {
		return Page[S]{}, fmt.Errorf("%w: response size %d", ErrProtocolViolation, responseSizeBytes)
	}

	page := Page[S]{
		items:             make([]document.Document, len(items)),
		requestCharge:     requestCharge,
		activityID:        activityID,
		responseSizeBytes: responseSizeBytes,
	}

	copy(page.items, items)

	if state != nil {
		s := *state
		page.state = &s
	}

	return page, nil
}

// WithExecutionInfo returns a copy of the page that
// carries info
func (page Page[S]) WithExecutionInfo(info ExecutionInfo) Page[S] {
	page.executionInfo = &info

	return page
}

// ExecutionInfo returns how the store executed the request.
// The second return value is false if the store did not say.
func (page Page[S]) ExecutionInfo() (ExecutionInfo, bool) {
	if page.executionInfo == nil {
		return ExecutionInfo{}, false
	}

	return *page.executionInfo, true
}

// Items returns the results in this page. The returned
// slice must not be modified.
func (page Page[S]) Items() []document.Document {
	return page.items
}

// Len returns the number of results in this page
func (page Page[S]) Len() int {
	return len(page.items)
}

// RequestCharge returns the cost units spent producing this page
func (page Page[S]) RequestCharge() float64 {
	return page.requestCharge
}

// ActivityID returns the correlation token of the request
// that produced this page. It may be empty.
func (page Page[S]) ActivityID() string {
	return page.activityID
}

// ResponseSizeBytes returns the size of the response
// that carried this page
func (page Page[S]) ResponseSizeBytes() int64 {
	return page.responseSizeBytes
}

// State returns the resumption state. The second return
// value is false if the source is exhausted.
func (page Page[S]) State() (S, bool) {
	var s S

	if page.state == nil {
		return s, false
	}

	return *page.state, true
}

// Done returns true if there are no more pages after this one
func (page Page[S]) Done() bool {
	return page.state == nil
}
