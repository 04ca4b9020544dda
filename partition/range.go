package partition

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// All returns the range covering the whole key space
func All() Range {
	return Range{}
}

// NewRange returns the range [min, max)
func NewRange(min, max []byte) Range {
	return Range{Min: min, Max: max}
}

// Range represents all keys such that
//   k >= Min and k < Max
// If Min is empty that indicates the start of all keys
// If Max is empty that indicates the end of all keys
// A range is the unit of independent storage in a
// partitioned container and is identified by its bounds.
type Range struct {
	Min []byte
	Max []byte
}

// ID returns a stable identity for the range derived
// from its bounds.
func (r Range) ID() string {
	return hex.EncodeToString(r.Min) + "-" + hex.EncodeToString(r.Max)
}

// String implements fmt.Stringer
func (r Range) String() string {
	return fmt.Sprintf("[%x,%x)", r.Min, r.Max)
}

// IsEmpty returns true if no key can fall inside
// the range
func (r Range) IsEmpty() bool {
	if len(r.Max) == 0 {
		return false
	}

	return bytes.Compare(r.Min, r.Max) >= 0
}

// Equal returns true if both ranges have the same bounds
func (r Range) Equal(o Range) bool {
	return bytes.Equal(r.Min, o.Min) && bytes.Equal(r.Max, o.Max)
}

// Contains returns true if k is inside the range
func (r Range) Contains(k []byte) bool {
	return bytes.Compare(k, r.Min) >= 0 && belowMax(k, r.Max)
}

// Overlaps returns true if at least one key
// falls inside both ranges
func (r Range) Overlaps(o Range) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}

	return belowMax(r.Min, o.Max) && belowMax(o.Min, r.Max)
}

// Intersect returns the keys that are inside both
// ranges. The result IsEmpty() if they do not overlap.
func (r Range) Intersect(o Range) Range {
	result := r

	if bytes.Compare(o.Min, result.Min) > 0 {
		result.Min = o.Min
	}

	if compareMax(o.Max, result.Max) < 0 {
		result.Max = o.Max
	}

	return result
}

// Covers returns true if every key in o is also in r
func (r Range) Covers(o Range) bool {
	return bytes.Compare(o.Min, r.Min) >= 0 && compareMax(o.Max, r.Max) <= 0
}

// Split divides the range at key at. at must be
// strictly inside the range.
func (r Range) Split(at []byte) (Range, Range, error) {
	if bytes.Compare(at, r.Min) <= 0 || !belowMax(at, r.Max) {
		return Range{}, Range{}, fmt.Errorf("split key %x is not inside range %s", at, r)
	}

	return Range{Min: r.Min, Max: copyKey(at)}, Range{Min: copyKey(at), Max: r.Max}, nil
}

// Compare orders ranges by their lower bound and then
// by their upper bound
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Range) int {
	if cmp := bytes.Compare(a.Min, b.Min); cmp != 0 {
		return cmp
	}

	return compareMax(a.Max, b.Max)
}

// compareMax compares two upper bounds where an empty
// bound sorts after every other bound
func compareMax(a, b []byte) int {
	if len(a) == 0 {
		if len(b) == 0 {
			return 0
		}

		return 1
	}

	if len(b) == 0 {
		return -1
	}

	return bytes.Compare(a, b)
}

// belowMax returns true if k < max where an
// empty max is the end of the key space
func belowMax(k []byte, max []byte) bool {
	if len(max) == 0 {
		return true
	}

	return bytes.Compare(k, max) < 0
}

func copyKey(k []byte) []byte {
	return append([]byte(nil), k...)
}
