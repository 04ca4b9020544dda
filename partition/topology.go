package partition

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

var (
	// ErrOverlappingRanges is returned when a topology is built
	// from ranges that share keys
	ErrOverlappingRanges = errors.New("partition ranges overlap")
	// ErrEmptyRange is returned when a topology is built from
	// a range that contains no keys
	ErrEmptyRange = errors.New("partition range is empty")
)

// Topology is the set of partition key ranges that a
// query execution targets at some point in time. Ranges
// never overlap and are kept ordered by their lower bound.
type Topology struct {
	ranges *treemap.Map
}

// NewTopology creates a topology from a set of ranges
func NewTopology(ranges ...Range) (*Topology, error) {
	topology := &Topology{ranges: treemap.NewWith(utils.StringComparator)}

	for _, r := range ranges {
		if r.IsEmpty() {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRange, r)
		}

		if overlapping := topology.Overlapping(r); len(overlapping) > 0 {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingRanges, r, overlapping[0])
		}

		topology.ranges.Put(string(r.Min), r)
	}

	return topology, nil
}

// Ranges returns all ranges in ascending order
func (topology *Topology) Ranges() []Range {
	ranges := make([]Range, 0, topology.ranges.Size())

	for _, value := range topology.ranges.Values() {
		ranges = append(ranges, value.(Range))
	}

	return ranges
}

// Len returns the number of ranges
func (topology *Topology) Len() int {
	return topology.ranges.Size()
}

// Has returns true if r is exactly one of the ranges
// in this topology
func (topology *Topology) Has(r Range) bool {
	value, ok := topology.ranges.Get(string(r.Min))

	if !ok {
		return false
	}

	return value.(Range).Equal(r)
}

// Overlapping returns the ranges that share at least
// one key with r in ascending order
func (topology *Topology) Overlapping(r Range) []Range {
	var overlapping []Range

	if r.IsEmpty() {
		return overlapping
	}

	// The range whose lower bound is the greatest lower bound
	// below r.Min may still reach into r.
	start := string(r.Min)

	if floorKey, _ := topology.ranges.Floor(start); floorKey != nil {
		start = floorKey.(string)
	}

	iter := topology.ranges.Iterator()

	for iter.Next() {
		if iter.Key().(string) < start {
			continue
		}

		candidate := iter.Value().(Range)

		if !belowMax(candidate.Min, r.Max) {
			break
		}

		if candidate.Overlaps(r) {
			overlapping = append(overlapping, candidate)
		}
	}

	return overlapping
}

// Gaps returns the parts of r that are not covered by
// any of the covered ranges in ascending order.
func Gaps(r Range, covered []Range) []Range {
	sorted := make([]Range, 0, len(covered))

	for _, c := range covered {
		if c = c.Intersect(r); !c.IsEmpty() {
			sorted = append(sorted, c)
		}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return Compare(sorted[i], sorted[j]) < 0
	})

	var gaps []Range
	cursor := r.Min

	for _, c := range sorted {
		if bytes.Compare(c.Min, cursor) > 0 {
			gaps = append(gaps, Range{Min: cursor, Max: c.Min})
		}

		if len(c.Max) == 0 {
			return gaps
		}

		if bytes.Compare(c.Max, cursor) > 0 {
			cursor = c.Max
		}
	}

	if belowMax(cursor, r.Max) {
		gaps = append(gaps, Range{Min: cursor, Max: r.Max})
	}

	return gaps
}
