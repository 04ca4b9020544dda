// Package diagnostics accumulates what a query execution did:
// the pages it fetched, what they cost, the splits it observed
// and the failures it hit. A Snapshot of the trace is attached
// to terminal errors and can be logged with zap.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"go.uber.org/zap/zapcore"
)

var _ zapcore.ObjectMarshaler = Snapshot{}
var _ zapcore.ObjectMarshaler = RangeStats{}

// RangeStats summarizes the requests made against
// one partition key range
type RangeStats struct {
	Range             partition.Range
	Pages             int
	Items             int
	RequestCharge     float64
	ResponseSizeBytes int64
	Elapsed           time.Duration
	Failures          int
	Split             bool
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (stats RangeStats) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("range", stats.Range.String())
	encoder.AddInt("pages", stats.Pages)
	encoder.AddInt("items", stats.Items)
	encoder.AddFloat64("charge", stats.RequestCharge)
	encoder.AddInt64("bytes", stats.ResponseSizeBytes)
	encoder.AddDuration("elapsed", stats.Elapsed)

	if stats.Failures > 0 {
		encoder.AddInt("failures", stats.Failures)
	}

	if stats.Split {
		encoder.AddBool("split", true)
	}

	return nil
}

// Snapshot is a point in time copy of a Trace
type Snapshot struct {
	Started           time.Time
	Elapsed           time.Duration
	Pages             int
	RequestCharge     float64
	ResponseSizeBytes int64
	ActivityIDs       []string
	ExecutionInfo     *page.ExecutionInfo
	Ranges            []RangeStats
	Data              map[string]string
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (snapshot Snapshot) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddDuration("elapsed", snapshot.Elapsed)
	encoder.AddInt("pages", snapshot.Pages)
	encoder.AddFloat64("charge", snapshot.RequestCharge)
	encoder.AddInt64("bytes", snapshot.ResponseSizeBytes)

	if err := encoder.AddArray("activityIds", zapcore.ArrayMarshalerFunc(func(array zapcore.ArrayEncoder) error {
		for _, id := range snapshot.ActivityIDs {
			array.AppendString(id)
		}

		return nil
	})); err != nil {
		return err
	}

	if err := encoder.AddArray("ranges", zapcore.ArrayMarshalerFunc(func(array zapcore.ArrayEncoder) error {
		for _, stats := range snapshot.Ranges {
			if err := array.AppendObject(stats); err != nil {
				return err
			}
		}

		return nil
	})); err != nil {
		return err
	}

	for _, key := range snapshot.dataKeys() {
		encoder.AddString(key, snapshot.Data[key])
	}

	return nil
}

// String implements fmt.Stringer
func (snapshot Snapshot) String() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "elapsed=%s pages=%d charge=%g bytes=%d", snapshot.Elapsed, snapshot.Pages, snapshot.RequestCharge, snapshot.ResponseSizeBytes)

	for _, stats := range snapshot.Ranges {
		fmt.Fprintf(&builder, " %s{pages=%d items=%d charge=%g}", stats.Range, stats.Pages, stats.Items, stats.RequestCharge)
	}

	for _, key := range snapshot.dataKeys() {
		fmt.Fprintf(&builder, " %s=%q", key, snapshot.Data[key])
	}

	return builder.String()
}

func (snapshot Snapshot) dataKeys() []string {
	keys := make([]string, 0, len(snapshot.Data))

	for key := range snapshot.Data {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Trace is safe for concurrent use
type Trace struct {
	mu          sync.Mutex
	started     time.Time
	now         func() time.Time
	pages       int
	charge      float64
	bytes       int64
	activityIDs []string
	info        *page.ExecutionInfo
	ranges      map[string]*RangeStats
	data        map[string]string
}

// New starts a trace
func New() *Trace {
	return newTrace(time.Now)
}

func newTrace(now func() time.Time) *Trace {
	return &Trace{
		started: now(),
		now:     now,
		ranges:  map[string]*RangeStats{},
		data:    map[string]string{},
	}
}

func (trace *Trace) rangeStats(r partition.Range) *RangeStats {
	stats, ok := trace.ranges[r.ID()]

	if !ok {
		stats = &RangeStats{Range: r}
		trace.ranges[r.ID()] = stats
	}

	return stats
}

// RecordPage records a page fetched from r
func (trace *Trace) RecordPage(r partition.Range, items int, charge float64, size int64, activityID string, elapsed time.Duration) {
	if trace == nil {
		return
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	trace.pages++
	trace.charge += charge
	trace.bytes += size

	if activityID != "" {
		trace.activityIDs = append(trace.activityIDs, activityID)
	}

	stats := trace.rangeStats(r)
	stats.Pages++
	stats.Items += items
	stats.RequestCharge += charge
	stats.ResponseSizeBytes += size
	stats.Elapsed += elapsed
}

// RecordExecutionInfo records the execution info
// reported with a page
func (trace *Trace) RecordExecutionInfo(info page.ExecutionInfo) {
	if trace == nil {
		return
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	trace.info = &info
}

// RecordSplit records that r was found to be split
func (trace *Trace) RecordSplit(r partition.Range) {
	if trace == nil {
		return
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	trace.rangeStats(r).Split = true
}

// RecordFailure records a failed request against r
func (trace *Trace) RecordFailure(r partition.Range, elapsed time.Duration) {
	if trace == nil {
		return
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	stats := trace.rangeStats(r)
	stats.Failures++
	stats.Elapsed += elapsed
}

// AddDatum attaches a named value to the trace.
// Later values replace earlier ones.
func (trace *Trace) AddDatum(key string, value string) {
	if trace == nil {
		return
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	trace.data[key] = value
}

// Snapshot copies the current state of the trace
func (trace *Trace) Snapshot() Snapshot {
	if trace == nil {
		return Snapshot{}
	}

	trace.mu.Lock()
	defer trace.mu.Unlock()

	snapshot := Snapshot{
		Started:           trace.started,
		Elapsed:           trace.now().Sub(trace.started),
		Pages:             trace.pages,
		RequestCharge:     trace.charge,
		ResponseSizeBytes: trace.bytes,
		ActivityIDs:       append([]string{}, trace.activityIDs...),
		Ranges:            make([]RangeStats, 0, len(trace.ranges)),
		Data:              make(map[string]string, len(trace.data)),
	}

	if trace.info != nil {
		info := *trace.info
		snapshot.ExecutionInfo = &info
	}

	for _, stats := range trace.ranges {
		snapshot.Ranges = append(snapshot.Ranges, *stats)
	}

	sort.Slice(snapshot.Ranges, func(i, j int) bool {
		return partition.Compare(snapshot.Ranges[i].Range, snapshot.Ranges[j].Range) < 0
	})

	for key, value := range trace.data {
		snapshot.Data[key] = value
	}

	return snapshot
}
