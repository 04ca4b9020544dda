// Package producer pulls pages of results from one partition key
// range and buffers their items until the merge engine takes them.
// A producer knows exactly which item it will yield next, so it can
// describe its resume point at any time, including partway through
// a page.
package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/jrife/xpquery/diagnostics"
	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/query/continuation"
	"github.com/jrife/xpquery/transport"
	"github.com/jrife/xpquery/utils/log"
	"go.uber.org/zap"
)

const (
	// DefaultIdentityKey is used when Config.IdentityKey is empty
	DefaultIdentityKey = "id"
)

// Config configures a Producer
type Config struct {
	// MaxBufferedItems bounds the number of items a producer
	// buffers. Zero means unbounded.
	MaxBufferedItems int
	// PageSizeHint is passed to the fetcher. Zero means no
	// preference. It is clamped to the free buffer space.
	PageSizeHint int
	// IdentityKey is the document path that identifies a result
	IdentityKey string
	Logger      *zap.Logger
	// Trace, if set, records every page and failure
	Trace *diagnostics.Trace
}

func (config Config) withDefaults() Config {
	if config.IdentityKey == "" {
		config.IdentityKey = DefaultIdentityKey
	}

	if config.Logger == nil {
		config.Logger = zap.L()
	}

	return config
}

// bufferedPage is a page whose items have not all been
// consumed. offset counts the items taken from the start
// of the page and consumed holds their identities.
type bufferedPage struct {
	from       []byte
	items      []document.Document
	offset     int
	consumed   []string
	identified bool
}

func (bufferedPage *bufferedPage) consume(identityKey string) document.Document {
	item := bufferedPage.items[0]
	bufferedPage.items = bufferedPage.items[1:]
	bufferedPage.offset++

	if id, ok := item.Identity(identityKey); ok && bufferedPage.identified {
		bufferedPage.consumed = append(bufferedPage.consumed, id)
	} else {
		bufferedPage.identified = false
		bufferedPage.consumed = nil
	}

	return item
}

// Producer fetches and buffers the results of one partition
// key range. It is not safe for concurrent use: all methods
// except Request.Do must be called from one goroutine.
type Producer struct {
	fetcher   transport.Fetcher
	rng       partition.Range
	config    Config
	logger    *zap.Logger
	buffer    []*bufferedPage
	buffered  int
	token     []byte
	exhausted bool
	charge    float64
	inFlight  bool
	children  []partition.Range
	// skip and seen describe results at the start of the next
	// page that were consumed before this producer was created
	skip int
	seen []string
}

// New creates a producer that resumes at entry
func New(fetcher transport.Fetcher, entry continuation.Entry, config Config) *Producer {
	config = config.withDefaults()

	return &Producer{
		fetcher: fetcher,
		rng:     entry.Range,
		config:  config,
		logger:  config.Logger.With(zap.Stringer("range", entry.Range)),
		token:   entry.Token,
		skip:    entry.Skip,
		seen:    append([]string(nil), entry.Seen...),
	}
}

// Range returns the partition key range of this producer
func (producer *Producer) Range() partition.Range {
	return producer.rng
}

// Buffered returns the number of buffered items
func (producer *Producer) Buffered() int {
	return producer.buffered
}

// RequestCharge returns the total charge of all pages fetched
func (producer *Producer) RequestCharge() float64 {
	return producer.charge
}

// InFlight returns true if a fetch has begun and not completed
func (producer *Producer) InFlight() bool {
	return producer.inFlight
}

// SplitPending returns true if the range was found to be split.
// The producer keeps yielding its buffered items and is replaced
// by its children once the buffer is empty.
func (producer *Producer) SplitPending() bool {
	return len(producer.children) > 0
}

// ReadyToSplit returns true if the producer should now be
// replaced by its children
func (producer *Producer) ReadyToSplit() bool {
	return producer.SplitPending() && producer.buffered == 0 && !producer.inFlight
}

// IsExhausted returns true if the producer will never
// yield another item
func (producer *Producer) IsExhausted() bool {
	return producer.exhausted && producer.buffered == 0 && !producer.SplitPending()
}

// CanFetch returns true if a fetch can begin now
func (producer *Producer) CanFetch() bool {
	if producer.inFlight || producer.exhausted || producer.SplitPending() {
		return false
	}

	return producer.config.MaxBufferedItems <= 0 || producer.buffered < producer.config.MaxBufferedItems
}

// NeedsFetch returns true if the buffer is empty and
// more items may exist
func (producer *Producer) NeedsFetch() bool {
	return producer.buffered == 0 && producer.CanFetch()
}

// TryPeek returns the next item without fetching
func (producer *Producer) TryPeek() (document.Document, bool) {
	if producer.buffered == 0 {
		return nil, false
	}

	return producer.buffer[0].items[0], true
}

// TryTake removes and returns the next item. If the buffer is
// empty it fetches until an item arrives, the range is exhausted
// or a split is found. It returns false if no item is available.
func (producer *Producer) TryTake(ctx context.Context) (document.Document, bool, error) {
	for producer.buffered == 0 {
		if !producer.CanFetch() {
			return nil, false, nil
		}

		if err := producer.Fetch(ctx); err != nil {
			return nil, false, err
		}
	}

	return producer.take(), true, nil
}

// Take removes and returns the next buffered item
// without fetching
func (producer *Producer) Take() (document.Document, bool) {
	if producer.buffered == 0 {
		return nil, false
	}

	return producer.take(), true
}

func (producer *Producer) take() document.Document {
	head := producer.buffer[0]
	item := head.consume(producer.config.IdentityKey)
	producer.buffered--

	if len(head.items) == 0 {
		producer.buffer[0] = nil
		producer.buffer = producer.buffer[1:]
	}

	return item
}

// Fetch requests one page with the current token. On failure
// the producer is unchanged and the fetch may be retried.
// A split is not a failure: the producer records the ranges
// that replace it and returns nil.
func (producer *Producer) Fetch(ctx context.Context) error {
	logger := log.WithContext(ctx, producer.logger).With(zap.String("operation", "Fetch"))
	logger.Debug("start")
	defer logger.Debug("return")

	request, err := producer.BeginFetch()

	if err != nil {
		return err
	}

	return producer.Complete(request.Do(ctx))
}

// Request describes one page fetch. Do may run on any goroutine.
type Request struct {
	producer *Producer
	fetcher  transport.Fetcher
	rng      partition.Range
	state    *page.State
	hint     int
}

// Producer returns the producer that began the request
func (request Request) Producer() *Producer {
	return request.producer
}

// Do performs the request. It reads no producer state.
func (request Request) Do(ctx context.Context) Result {
	start := time.Now()
	result, err := request.fetcher.FetchPage(ctx, request.rng, request.state, request.hint)

	return Result{request: request, page: result, err: err, elapsed: time.Since(start)}
}

// Result is the outcome of a Request
type Result struct {
	request Request
	page    page.Page[page.State]
	err     error
	elapsed time.Duration
}

// Producer returns the producer that began the request
func (result Result) Producer() *Producer {
	return result.request.producer
}

// Err returns the error of the request, if any
func (result Result) Err() error {
	return result.err
}

// BeginFetch marks a fetch as in flight and returns the
// request to perform. Every request must be passed to
// Complete or Abandon.
func (producer *Producer) BeginFetch() (Request, error) {
	if producer.inFlight {
		return Request{}, ErrFetchInFlight
	}

	if producer.exhausted || producer.SplitPending() {
		return Request{}, ErrNothingToFetch
	}

	var state *page.State

	if producer.token != nil {
		state = &page.State{Range: producer.rng, Token: producer.token}
	}

	producer.inFlight = true
	producer.logger.Debug("begin fetch", zap.Bool("resume", state != nil))

	return Request{
		producer: producer,
		fetcher:  producer.fetcher,
		rng:      producer.rng,
		state:    state,
		hint:     producer.hint(),
	}, nil
}

func (producer *Producer) hint() int {
	hint := producer.config.PageSizeHint

	if producer.config.MaxBufferedItems > 0 {
		free := producer.config.MaxBufferedItems - producer.buffered

		if hint <= 0 || hint > free {
			hint = free
		}
	}

	return hint
}

// Abandon releases a request that will never be performed
func (producer *Producer) Abandon(request Request) {
	if request.producer == producer {
		producer.inFlight = false
	}
}

// Complete applies the result of a request begun by BeginFetch
func (producer *Producer) Complete(result Result) error {
	if result.request.producer != producer {
		return ErrForeignResult
	}

	producer.inFlight = false
	logger := producer.logger.With(zap.String("operation", "Complete"), zap.Duration("elapsed", result.elapsed))

	if result.err != nil {
		if splitError, ok := transport.IsSplit(result.err); ok {
			return producer.split(logger, splitError)
		}

		producer.config.Trace.RecordFailure(producer.rng, result.elapsed)
		logger.Debug("fetch failed", zap.Error(result.err))

		return result.err
	}

	p := result.page
	state, hasState := p.State()

	if hasState && !state.Range.Equal(producer.rng) {
		return fmt.Errorf("%w: page for %s has state for %s", page.ErrProtocolViolation, producer.rng, state.Range)
	}

	if hasState && state.Token == nil {
		return fmt.Errorf("%w: page for %s has a state without a token", page.ErrProtocolViolation, producer.rng)
	}

	producer.config.Trace.RecordPage(producer.rng, p.Len(), p.RequestCharge(), p.ResponseSizeBytes(), p.ActivityID(), result.elapsed)

	if info, ok := p.ExecutionInfo(); ok {
		producer.config.Trace.RecordExecutionInfo(info)
	}

	producer.charge += p.RequestCharge()
	from := producer.token

	if hasState {
		producer.token = state.Token
	} else {
		producer.exhausted = true
	}

	bufferedPage := &bufferedPage{from: from, items: p.Items(), identified: true}
	dropped := producer.prime(bufferedPage)

	if len(bufferedPage.items) > 0 {
		producer.buffer = append(producer.buffer, bufferedPage)
		producer.buffered += len(bufferedPage.items)
	}

	logger.Debug("fetched page", zap.Int("items", p.Len()), zap.Int("dropped", dropped), zap.Bool("exhausted", producer.exhausted))

	return nil
}

// prime drops items at the start of a new page that were
// consumed before this producer was created
func (producer *Producer) prime(bufferedPage *bufferedPage) int {
	dropped := 0

	for len(bufferedPage.items) > 0 && (producer.skip > 0 || len(producer.seen) > 0) {
		if producer.skip > 0 {
			bufferedPage.consume(producer.config.IdentityKey)
			producer.skip--
			dropped++

			if len(producer.seen) > 0 {
				producer.seen = producer.seen[1:]
			}

			if producer.skip == 0 {
				producer.seen = nil
			}

			continue
		}

		id, ok := bufferedPage.items[0].Identity(producer.config.IdentityKey)

		if !ok || !producer.forget(id) {
			producer.seen = nil

			break
		}

		bufferedPage.consume(producer.config.IdentityKey)
		dropped++
	}

	return dropped
}

func (producer *Producer) forget(id string) bool {
	for i, seen := range producer.seen {
		if seen == id {
			producer.seen = append(producer.seen[:i:i], producer.seen[i+1:]...)

			return true
		}
	}

	return false
}

func (producer *Producer) split(logger *zap.Logger, splitError *transport.SplitError) error {
	var children []partition.Range

	for _, child := range splitError.Children {
		if child = child.Intersect(producer.rng); !child.IsEmpty() {
			children = append(children, child)
		}
	}

	if len(children) == 0 || len(partition.Gaps(producer.rng, children)) != 0 {
		return fmt.Errorf("%w: split of %s does not cover the range: %s", page.ErrProtocolViolation, producer.rng, splitError)
	}

	if len(children) == 1 && children[0].Equal(producer.rng) {
		return fmt.Errorf("%w: split of %s returned the range itself", page.ErrProtocolViolation, producer.rng)
	}

	producer.children = children
	producer.config.Trace.RecordSplit(producer.rng)
	logger.Debug("range was split", zap.Int("children", len(children)))

	return nil
}

// Children returns producers for the ranges that replace this
// one after a split. Each resumes from this producer's token.
func (producer *Producer) Children() ([]*Producer, error) {
	if !producer.ReadyToSplit() {
		return nil, fmt.Errorf("producer for %s is not ready to split", producer.rng)
	}

	entry, _ := producer.Checkpoint()

	if entry.Skip > 0 && len(entry.Seen) != entry.Skip {
		return nil, fmt.Errorf("%w: %s was split before %d consumed results without identities were skipped", transport.ErrStateNotMappable, producer.rng, entry.Skip)
	}

	children := make([]*Producer, 0, len(producer.children))

	for _, child := range producer.children {
		children = append(children, New(producer.fetcher, continuation.Entry{Range: child, Token: entry.Token, Seen: entry.Seen}, producer.config))
	}

	return children, nil
}

// Checkpoint returns the resume point of the next item this
// producer would yield. It returns false if the producer is
// exhausted.
func (producer *Producer) Checkpoint() (continuation.Entry, bool) {
	if producer.IsExhausted() {
		return continuation.Entry{}, false
	}

	if producer.buffered > 0 {
		head := producer.buffer[0]
		entry := continuation.Entry{Range: producer.rng, Token: head.from, Skip: head.offset}

		if head.identified && head.offset > 0 {
			entry.Seen = append([]string(nil), head.consumed...)
		}

		return entry, true
	}

	return continuation.Entry{
		Range: producer.rng,
		Token: producer.token,
		Skip:  producer.skip,
		Seen:  append([]string(nil), producer.seen...),
	}, true
}
