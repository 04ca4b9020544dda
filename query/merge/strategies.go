package merge

import (
	"context"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/plan"
	"github.com/jrife/xpquery/query/producer"
)

var _ strategy = (*unordered)(nil)
var _ strategy = (*orderBy)(nil)
var _ strategy = (*top)(nil)

// unordered yields from the first producer, in range order,
// that has buffered items
type unordered struct {
}

func (strategy *unordered) next(ctx context.Context, engine *Engine) (document.Document, bool, error) {
	for {
		if err := engine.set.Settle(); err != nil {
			return nil, false, err
		}

		if engine.set.Len() == 0 {
			return nil, false, nil
		}

		for _, p := range engine.set.Producers() {
			if item, ok := p.Take(); ok {
				return item, true, nil
			}
		}

		batch := strategy.batch(engine)

		if len(batch) == 0 {
			return nil, false, ErrNoProgress
		}

		if err := engine.fetch(ctx, batch); err != nil {
			return nil, false, err
		}
	}
}

// batch picks the producers that need a page, up to
// MaxConcurrency, and fills the remaining slots with
// producers that have room in their buffer
func (strategy *unordered) batch(engine *Engine) []*producer.Producer {
	var batch []*producer.Producer
	picked := map[*producer.Producer]bool{}

	for _, p := range engine.set.Producers() {
		if len(batch) == engine.config.MaxConcurrency {
			return batch
		}

		if p.NeedsFetch() {
			batch = append(batch, p)
			picked[p] = true
		}
	}

	for _, p := range engine.set.Producers() {
		if len(batch) == engine.config.MaxConcurrency {
			return batch
		}

		if !picked[p] && p.CanFetch() {
			batch = append(batch, p)
		}
	}

	return batch
}

// orderBy yields the smallest head item across all producers.
// No item is chosen while a producer that may still have items
// has none buffered.
type orderBy struct {
	plan   plan.Plan
	heads  *binaryheap.Heap
	inHeap map[*producer.Producer]bool
}

func newOrderBy(p plan.Plan) *orderBy {
	strategy := &orderBy{plan: p, inHeap: map[*producer.Producer]bool{}}
	strategy.heads = binaryheap.NewWith(strategy.compare)

	return strategy
}

// compare orders producers by their head item and then
// by range so that equal items come out in a stable order
func (strategy *orderBy) compare(a, b interface{}) int {
	producerA := a.(*producer.Producer)
	producerB := b.(*producer.Producer)
	headA, _ := producerA.TryPeek()
	headB, _ := producerB.TryPeek()

	if cmp := strategy.plan.Compare(headA, headB); cmp != 0 {
		return cmp
	}

	return partition.Compare(producerA.Range(), producerB.Range())
}

func (strategy *orderBy) next(ctx context.Context, engine *Engine) (document.Document, bool, error) {
	for {
		if err := engine.set.Settle(); err != nil {
			return nil, false, err
		}

		if engine.set.Len() == 0 {
			return nil, false, nil
		}

		var missing []*producer.Producer

		for _, p := range engine.set.Producers() {
			if p.Buffered() == 0 {
				missing = append(missing, p)
			} else if !strategy.inHeap[p] {
				strategy.heads.Push(p)
				strategy.inHeap[p] = true
			}
		}

		if len(missing) > 0 {
			for _, p := range missing {
				if !p.CanFetch() {
					return nil, false, ErrNoProgress
				}
			}

			if err := engine.fetch(ctx, missing); err != nil {
				return nil, false, err
			}

			continue
		}

		value, ok := strategy.heads.Pop()

		if !ok {
			return nil, false, ErrNoProgress
		}

		p := value.(*producer.Producer)
		delete(strategy.inHeap, p)
		item, _ := p.Take()

		if p.Buffered() > 0 {
			strategy.heads.Push(p)
			strategy.inHeap[p] = true
		}

		return item, true, nil
	}
}

// top stops after limit results
type top struct {
	inner strategy
	limit int64
}

func (strategy *top) next(ctx context.Context, engine *Engine) (document.Document, bool, error) {
	if engine.yielded >= strategy.limit {
		return nil, false, nil
	}

	return strategy.inner.next(ctx, engine)
}
