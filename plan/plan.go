// Package plan describes the parts of a query plan that drive
// how results from many partition key ranges are merged.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/utils/uuid"
)

// Mode selects how results from different partition
// key ranges are combined
type Mode int

const (
	// Unordered results may be returned in any order
	Unordered Mode = iota
	// OrderBy results are returned in global sort order
	OrderBy
	// Top returns at most Limit results, sorted if
	// the plan has sort keys
	Top
)

// String implements fmt.Stringer
func (mode Mode) String() string {
	switch mode {
	case Unordered:
		return "unordered"
	case OrderBy:
		return "order-by"
	case Top:
		return "top"
	}

	return fmt.Sprintf("mode(%d)", int(mode))
}

var (
	// ErrInvalidPlan is returned by Validate
	ErrInvalidPlan = errors.New("invalid query plan")
)

// SortKey is one ordering key of an order by clause
type SortKey struct {
	// Path is a dotted document path
	Path string `json:"path"`
	// Descending reverses the order of this key
	Descending bool `json:"desc,omitempty"`
}

// Plan describes a query execution
type Plan struct {
	Mode    Mode      `json:"mode"`
	OrderBy []SortKey `json:"orderBy,omitempty"`
	// TieBreak is a document path compared in ascending
	// order after every sort key. Documents that still
	// compare equal are ordered by partition key range.
	TieBreak string `json:"tieBreak,omitempty"`
	// Limit is the maximum number of results for Top
	Limit int64 `json:"limit,omitempty"`
	// Query is the query text sent to every partition.
	// It is opaque here and only contributes to the
	// plan's fingerprint.
	Query string `json:"query,omitempty"`
}

// Validate checks that the plan is internally consistent
func (plan Plan) Validate() error {
	switch plan.Mode {
	case Unordered:
		if len(plan.OrderBy) > 0 {
			return fmt.Errorf("%w: unordered plan has sort keys", ErrInvalidPlan)
		}
	case OrderBy:
		if len(plan.OrderBy) == 0 {
			return fmt.Errorf("%w: order by plan has no sort keys", ErrInvalidPlan)
		}
	case Top:
		if plan.Limit <= 0 {
			return fmt.Errorf("%w: top plan needs a positive limit, got %d", ErrInvalidPlan, plan.Limit)
		}
	default:
		return fmt.Errorf("%w: unknown mode %s", ErrInvalidPlan, plan.Mode)
	}

	for i, key := range plan.OrderBy {
		if key.Path == "" {
			return fmt.Errorf("%w: sort key %d has no path", ErrInvalidPlan, i)
		}
	}

	return nil
}

// Ordered returns true if results must be globally sorted
func (plan Plan) Ordered() bool {
	return len(plan.OrderBy) > 0
}

// Compare orders two documents by the plan's sort keys
// and then by its tie break key. It returns:
// -1 if a < b
//  0 if a == b
// +1 if a > b
func (plan Plan) Compare(a, b document.Document) int {
	for _, key := range plan.OrderBy {
		cmp := document.Compare(a.Get(key.Path), b.Get(key.Path))

		if key.Descending {
			cmp = -cmp
		}

		if cmp != 0 {
			return cmp
		}
	}

	if plan.TieBreak != "" {
		return document.Compare(a.Get(plan.TieBreak), b.Get(plan.TieBreak))
	}

	return 0
}

// Fingerprint identifies the shape of the query. Continuations
// produced by one plan are only valid for plans with the same
// fingerprint.
func (plan Plan) Fingerprint() string {
	// encoding/json writes struct fields in declaration order
	canonical, err := json.Marshal(plan)

	if err != nil {
		panic(fmt.Sprintf("could not marshal plan: %s", err))
	}

	return uuid.FromName(canonical)
}
