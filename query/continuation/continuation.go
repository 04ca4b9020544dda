// Package continuation describes the resume point of a query that
// spans many partition key ranges. A Continuation records, for every
// range that still has results, where the range's next result is;
// it records which ranges were read to the end; and it records which
// query it belongs to. Continuations are encoded to opaque strings
// that callers hand back to resume a query.
package continuation

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/jrife/xpquery/partition"
)

// Entry is the resume point of one partition key range.
type Entry struct {
	Range partition.Range
	// Token is the resumption token of the page that holds
	// the next result. Nil means the start of the range.
	Token []byte
	// Skip is the number of results of the page fetched
	// from Token that were already consumed
	Skip int
	// Seen holds the identities of the consumed results,
	// in order. It is only recorded when every one of them
	// has an identity. When Skip is zero and Seen is not
	// empty, results at the start of the range whose identity
	// is in Seen were consumed before the range was split.
	Seen []string
}

// Fresh returns true if the entry starts at the beginning of its range
func (entry Entry) Fresh() bool {
	return entry.Token == nil && entry.Skip == 0 && len(entry.Seen) == 0
}

func (entry Entry) clone() Entry {
	clone := entry

	if entry.Token != nil {
		clone.Token = append([]byte{}, entry.Token...)
	}

	if entry.Seen != nil {
		clone.Seen = append([]string{}, entry.Seen...)
	}

	return clone
}

// Continuation is the resume point of a query across
// all partition key ranges.
type Continuation struct {
	// Fingerprint identifies the query that produced
	// this continuation
	Fingerprint string
	// Yielded is the number of results returned before
	// this continuation was taken
	Yielded int64
	entries *treemap.Map
	done    []partition.Range
}

// New creates an empty continuation
func New(fingerprint string) *Continuation {
	return &Continuation{
		Fingerprint: fingerprint,
		entries:     treemap.NewWith(utils.StringComparator),
	}
}

// Put adds the resume point of a range. It fails if the
// range overlaps a range already in the continuation.
func (continuation *Continuation) Put(entry Entry) error {
	if entry.Range.IsEmpty() {
		return malformed("entry for empty range %s", entry.Range)
	}

	if entry.Skip < 0 {
		return malformed("entry for %s has negative skip %d", entry.Range, entry.Skip)
	}

	if len(entry.Seen) > 0 && entry.Skip > 0 && len(entry.Seen) != entry.Skip {
		return malformed("entry for %s has %d identities for %d consumed results", entry.Range, len(entry.Seen), entry.Skip)
	}

	if overlapping, ok := continuation.overlapping(entry.Range); ok {
		return malformed("%s overlaps %s", entry.Range, overlapping)
	}

	continuation.entries.Put(string(entry.Range.Min), entry.clone())

	return nil
}

// MarkDone records that r was read to the end
func (continuation *Continuation) MarkDone(r partition.Range) error {
	if overlapping, ok := continuation.overlapping(r); ok {
		return malformed("%s overlaps %s", r, overlapping)
	}

	continuation.done = append(continuation.done, r)

	return nil
}

func (continuation *Continuation) overlapping(r partition.Range) (partition.Range, bool) {
	for _, value := range continuation.entries.Values() {
		if entry := value.(Entry); entry.Range.Overlaps(r) {
			return entry.Range, true
		}
	}

	for _, done := range continuation.done {
		if done.Overlaps(r) {
			return done, true
		}
	}

	return partition.Range{}, false
}

// Get returns the entry for exactly r
func (continuation *Continuation) Get(r partition.Range) (Entry, bool) {
	value, ok := continuation.entries.Get(string(r.Min))

	if !ok || !value.(Entry).Range.Equal(r) {
		return Entry{}, false
	}

	return value.(Entry).clone(), true
}

// Entries returns the resume points ordered by range
func (continuation *Continuation) Entries() []Entry {
	entries := make([]Entry, 0, continuation.entries.Size())

	for _, value := range continuation.entries.Values() {
		entries = append(entries, value.(Entry).clone())
	}

	return entries
}

// Len returns the number of ranges that still have results
func (continuation *Continuation) Len() int {
	return continuation.entries.Size()
}

// Done returns the ranges that were read to the end
func (continuation *Continuation) Done() []partition.Range {
	return append([]partition.Range{}, continuation.done...)
}
