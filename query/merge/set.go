package merge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/query/continuation"
	"github.com/jrife/xpquery/query/producer"
	"go.uber.org/zap"
)

// Set is the collection of live producers of one query
// execution, ordered by range, together with the ranges
// that were already read to the end.
type Set struct {
	producers     []*producer.Producer
	done          []partition.Range
	retiredCharge float64
	logger        *zap.Logger
}

// NewSet creates a set. done lists ranges that must not be
// read again.
func NewSet(producers []*producer.Producer, done []partition.Range, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.L()
	}

	set := &Set{
		producers: append([]*producer.Producer{}, producers...),
		done:      append([]partition.Range{}, done...),
		logger:    logger,
	}

	set.sort()

	return set
}

func (set *Set) sort() {
	sort.Slice(set.producers, func(i, j int) bool {
		return partition.Compare(set.producers[i].Range(), set.producers[j].Range()) < 0
	})
}

// Producers returns the live producers ordered by range
func (set *Set) Producers() []*producer.Producer {
	return set.producers
}

// Len returns the number of live producers
func (set *Set) Len() int {
	return len(set.producers)
}

// RequestCharge returns the charge of every page fetched
// by any producer that was ever part of the set
func (set *Set) RequestCharge() float64 {
	charge := set.retiredCharge

	for _, p := range set.producers {
		charge += p.RequestCharge()
	}

	return charge
}

// Settle retires exhausted producers and replaces producers
// whose range was split, and whose buffer is now empty, with
// producers for the child ranges. It must only be called
// between merge steps so no step sees a partial replacement.
func (set *Set) Settle() error {
	changed := false
	producers := make([]*producer.Producer, 0, len(set.producers))

	for _, p := range set.producers {
		switch {
		case p.IsExhausted():
			set.done = append(set.done, p.Range())
			set.retiredCharge += p.RequestCharge()
			changed = true
			set.logger.Debug("range exhausted", zap.Stringer("range", p.Range()))
		case p.ReadyToSplit():
			children, err := p.Children()

			if err != nil {
				return err
			}

			set.retiredCharge += p.RequestCharge()
			producers = append(producers, children...)
			changed = true
			set.logger.Debug("replaced split range", zap.Stringer("range", p.Range()), zap.Int("children", len(children)))
		default:
			producers = append(producers, p)
		}
	}

	set.producers = producers

	if changed {
		set.sort()
	}

	return nil
}

// Checkpoint captures the resume point of every range
func (set *Set) Checkpoint(fingerprint string, yielded int64) (*continuation.Continuation, error) {
	result := continuation.New(fingerprint)
	result.Yielded = yielded
	done := append([]partition.Range{}, set.done...)

	for _, p := range set.producers {
		entry, ok := p.Checkpoint()

		if !ok {
			done = append(done, p.Range())

			continue
		}

		if err := result.Put(entry); err != nil {
			return nil, fmt.Errorf("could not checkpoint %s: %w", p.Range(), err)
		}
	}

	for _, r := range coalesce(done) {
		if err := result.MarkDone(r); err != nil {
			return nil, fmt.Errorf("could not checkpoint %s: %w", r, err)
		}
	}

	return result, nil
}

// coalesce merges adjacent ranges
func coalesce(ranges []partition.Range) []partition.Range {
	sort.Slice(ranges, func(i, j int) bool {
		return partition.Compare(ranges[i], ranges[j]) < 0
	})

	var result []partition.Range

	for _, r := range ranges {
		if n := len(result); n > 0 && len(result[n-1].Max) > 0 && bytes.Equal(result[n-1].Max, r.Min) {
			result[n-1].Max = r.Max

			continue
		}

		result = append(result, r)
	}

	return result
}
