// Package memory implements transport.Fetcher on top of an
// in-memory partitioned container. It is intended for tests:
// partitions can be split at any time, failures can be injected
// and every request can be delayed by a random latency.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/jrife/xpquery/document"
	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/plan"
	"github.com/jrife/xpquery/transport"
	"github.com/jrife/xpquery/utils/log"
	"github.com/jrife/xpquery/utils/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is used when Config.PageSize is zero
	DefaultPageSize = 10
	// DefaultPartitionKey is used when Config.PartitionKey is empty
	DefaultPartitionKey = "pk"
	// DefaultIdentityKey is used when Config.IdentityKey is empty
	DefaultIdentityKey = "id"
)

var (
	// ErrNoSuchRange is returned when a requested range is
	// not covered by the container's partitions
	ErrNoSuchRange = errors.New("no partition covers range")
	// ErrMissingKey is returned when a document without a
	// partition key or identity is inserted
	ErrMissingKey = errors.New("document is missing its partition key or identity")
	// ErrInvalidToken is returned when a resumption token
	// was not issued by this container
	ErrInvalidToken = errors.New("invalid resumption token")
)

// Config configures a Container
type Config struct {
	// PartitionKey is the document path whose value,
	// as bytes, places a document in a partition
	PartitionKey string
	// IdentityKey is the document path holding a unique id
	IdentityKey string
	// PageSize is the maximum number of items per page
	// when the caller gives no smaller hint
	PageSize int
	// ChargePerPage and ChargePerItem determine the
	// request charge reported with each page
	ChargePerPage float64
	ChargePerItem float64
	// Latency, if set, returns how long each request
	// should take
	Latency func() time.Duration
	// StrictState rejects tokens issued for a range other
	// than the requested one with transport.ErrStateNotMappable,
	// as a store that cannot resume a parent's token on a
	// child range would
	StrictState bool
	// ExecutionInfo, if set, is reported with every page
	ExecutionInfo *page.ExecutionInfo
	Logger        *zap.Logger
}

type storedDocument struct {
	key []byte
	doc document.Document
}

type fault struct {
	remaining int
	err       error
}

// Container is a partitioned document collection
type Container struct {
	config     Config
	mu         sync.Mutex
	documents  *treemap.Map
	partitions *treemap.Map
	faults     []*fault
	beforeHook func(r partition.Range)
	fetches    int
	inFlight   int
	maxFlight  int
}

// New creates a container with a single partition
// covering the whole key space
func New(config Config) *Container {
	if config.PartitionKey == "" {
		config.PartitionKey = DefaultPartitionKey
	}

	if config.IdentityKey == "" {
		config.IdentityKey = DefaultIdentityKey
	}

	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}

	if config.Logger == nil {
		config.Logger = zap.L()
	}

	container := &Container{
		config:     config,
		documents:  treemap.NewWith(utils.StringComparator),
		partitions: treemap.NewWith(utils.StringComparator),
	}

	container.partitions.Put("", partition.All())

	return container
}

// Insert adds documents to the container. A document with
// the same identity as an existing one replaces it.
func (container *Container) Insert(docs ...document.Document) error {
	container.mu.Lock()
	defer container.mu.Unlock()

	for _, doc := range docs {
		pk, ok := doc.Key(container.config.PartitionKey)

		if !ok {
			return fmt.Errorf("%w: %v", ErrMissingKey, doc)
		}

		id, ok := doc.Identity(container.config.IdentityKey)

		if !ok {
			return fmt.Errorf("%w: %v", ErrMissingKey, doc)
		}

		container.documents.Put(pk+"\x00"+id, storedDocument{key: []byte(pk), doc: doc})
	}

	return nil
}

// Split splits the partition containing key at into two
// partitions at that key
func (container *Container) Split(at []byte) error {
	container.mu.Lock()
	defer container.mu.Unlock()

	_, value := container.partitions.Floor(string(at))

	if value == nil {
		return fmt.Errorf("%w: key %x", ErrNoSuchRange, at)
	}

	left, right, err := value.(partition.Range).Split(at)

	if err != nil {
		return err
	}

	container.partitions.Put(string(left.Min), left)
	container.partitions.Put(string(right.Min), right)
	container.config.Logger.Debug("split partition", zap.Stringer("left", left), zap.Stringer("right", right))

	return nil
}

// Merge replaces every partition overlapping r with r.
// r must exactly cover the partitions it overlaps.
func (container *Container) Merge(r partition.Range) error {
	container.mu.Lock()
	defer container.mu.Unlock()

	overlapping := container.overlapping(r)

	if len(overlapping) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchRange, r)
	}

	first := overlapping[0]
	last := overlapping[len(overlapping)-1]

	if !bytes.Equal(first.Min, r.Min) || !bytes.Equal(last.Max, r.Max) {
		return fmt.Errorf("%w: %s does not align with partition boundaries", ErrNoSuchRange, r)
	}

	for _, p := range overlapping {
		container.partitions.Remove(string(p.Min))
	}

	container.partitions.Put(string(r.Min), r)

	return nil
}

// Topology returns the container's current partitions
func (container *Container) Topology() *partition.Topology {
	container.mu.Lock()
	defer container.mu.Unlock()

	ranges := make([]partition.Range, 0, container.partitions.Size())

	for _, value := range container.partitions.Values() {
		ranges = append(ranges, value.(partition.Range))
	}

	topology, err := partition.NewTopology(ranges...)

	if err != nil {
		panic(fmt.Sprintf("container partitions are inconsistent: %s", err))
	}

	return topology
}

// FailNext makes the next n requests fail with err
func (container *Container) FailNext(n int, err error) {
	container.mu.Lock()
	defer container.mu.Unlock()

	container.faults = append(container.faults, &fault{remaining: n, err: err})
}

// BeforeFetch registers a hook that runs at the start of
// every request, before the container state is read. The
// hook may call Split, Merge, Insert or FailNext.
func (container *Container) BeforeFetch(hook func(r partition.Range)) {
	container.mu.Lock()
	defer container.mu.Unlock()

	container.beforeHook = hook
}

// Fetches returns the number of requests served so far
func (container *Container) Fetches() int {
	container.mu.Lock()
	defer container.mu.Unlock()

	return container.fetches
}

// MaxConcurrentFetches returns the largest number of
// requests that were ever in progress at the same time
func (container *Container) MaxConcurrentFetches() int {
	container.mu.Lock()
	defer container.mu.Unlock()

	return container.maxFlight
}

// Query returns a fetcher that serves p against the container.
// Results within a partition are ordered by p's sort keys and
// then by identity.
func (container *Container) Query(p plan.Plan) transport.Fetcher {
	return &query{container: container, plan: p}
}

// Documents returns every document in the container in
// the order a query with plan p would produce them if the
// container had a single partition
func (container *Container) Documents(p plan.Plan) []document.Document {
	container.mu.Lock()
	defer container.mu.Unlock()

	docs := container.documentsIn(partition.All())
	q := &query{container: container, plan: p}
	sort.Slice(docs, func(i, j int) bool { return q.compare(docs[i], docs[j]) < 0 })

	return docs
}

func (container *Container) overlapping(r partition.Range) []partition.Range {
	var overlapping []partition.Range

	for _, value := range container.partitions.Values() {
		if p := value.(partition.Range); p.Overlaps(r) {
			overlapping = append(overlapping, p)
		}
	}

	return overlapping
}

func (container *Container) documentsIn(r partition.Range) []document.Document {
	docs := []document.Document{}
	iter := container.documents.Iterator()

	for iter.Next() {
		stored := iter.Value().(storedDocument)

		if r.Contains(stored.key) {
			docs = append(docs, stored.doc)
		}
	}

	return docs
}

func (container *Container) nextFault() error {
	for len(container.faults) > 0 {
		f := container.faults[0]

		if f.remaining <= 0 {
			container.faults = container.faults[1:]

			continue
		}

		f.remaining--

		return f.err
	}

	return nil
}

// token is the resumption token issued by this container.
// It names the range it was issued for and the last document
// returned.
type token struct {
	Min   []byte            `json:"min,omitempty"`
	Max   []byte            `json:"max,omitempty"`
	After document.Document `json:"after"`
}

var _ transport.Fetcher = (*query)(nil)

type query struct {
	container *Container
	plan      plan.Plan
}

func (q *query) compare(a, b document.Document) int {
	if cmp := q.plan.Compare(a, b); cmp != 0 {
		return cmp
	}

	return document.Compare(a.Get(q.container.config.IdentityKey), b.Get(q.container.config.IdentityKey))
}

// FetchPage implements transport.Fetcher
func (q *query) FetchPage(ctx context.Context, r partition.Range, state *page.State, hint int) (page.Page[page.State], error) {
	container := q.container
	logger := log.WithContext(ctx, container.config.Logger).With(zap.String("operation", "FetchPage"), zap.Stringer("range", r))

	container.mu.Lock()
	hook := container.beforeHook
	container.fetches++
	container.inFlight++

	if container.inFlight > container.maxFlight {
		container.maxFlight = container.inFlight
	}

	container.mu.Unlock()

	defer func() {
		container.mu.Lock()
		container.inFlight--
		container.mu.Unlock()
	}()

	if hook != nil {
		hook(r)
	}

	if container.config.Latency != nil {
		timer := time.NewTimer(container.config.Latency())
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return page.Page[page.State]{}, ctx.Err()
		case <-timer.C:
		}
	}

	container.mu.Lock()
	defer container.mu.Unlock()

	if err := container.nextFault(); err != nil {
		logger.Debug("injected failure", zap.Error(err))

		return page.Page[page.State]{}, err
	}

	overlapping := container.overlapping(r)

	if len(overlapping) == 0 || len(partition.Gaps(r, overlapping)) != 0 {
		return page.Page[page.State]{}, fmt.Errorf("%w: %s", ErrNoSuchRange, r)
	}

	if len(overlapping) > 1 {
		logger.Debug("range was split", zap.Int("children", len(overlapping)))

		return page.Page[page.State]{}, &transport.SplitError{Range: r, Children: overlapping}
	}

	var after document.Document

	if state != nil && len(state.Token) > 0 {
		var t token

		if err := json.Unmarshal(state.Token, &t); err != nil {
			return page.Page[page.State]{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
		}

		if container.config.StrictState && !partition.NewRange(t.Min, t.Max).Equal(r) {
			return page.Page[page.State]{}, fmt.Errorf("%w: token for %s used for %s", transport.ErrStateNotMappable, partition.NewRange(t.Min, t.Max), r)
		}

		after = t.After
	}

	docs := container.documentsIn(r)
	sort.Slice(docs, func(i, j int) bool { return q.compare(docs[i], docs[j]) < 0 })

	if after != nil {
		start := sort.Search(len(docs), func(i int) bool { return q.compare(docs[i], after) > 0 })
		docs = docs[start:]
	}

	pageSize := container.config.PageSize

	if hint > 0 && hint < pageSize {
		pageSize = hint
	}

	var next *page.State
	items := docs

	if len(docs) > pageSize {
		items = docs[:pageSize]
		encodedToken, err := json.Marshal(token{Min: r.Min, Max: r.Max, After: items[len(items)-1]})

		if err != nil {
			return page.Page[page.State]{}, fmt.Errorf("could not encode token: %s", err)
		}

		next = &page.State{Range: r, Token: encodedToken}
	}

	encoded, err := json.Marshal(items)

	if err != nil {
		return page.Page[page.State]{}, fmt.Errorf("could not encode page: %s", err)
	}

	charge := container.config.ChargePerPage + container.config.ChargePerItem*float64(len(items))
	logger.Debug("served page", zap.Int("items", len(items)), zap.Bool("more", next != nil))

	result, err := page.New(items, charge, uuid.MustUUID(), int64(len(encoded)), next)

	if err != nil || container.config.ExecutionInfo == nil {
		return result, err
	}

	return result.WithExecutionInfo(*container.config.ExecutionInfo), nil
}
