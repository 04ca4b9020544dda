package diagnostics

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/xpquery/page"
	"github.com/jrife/xpquery/partition"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrace(t *testing.T) {
	clock := time.Unix(0, 0)
	trace := newTrace(func() time.Time { return clock })
	a := partition.NewRange(nil, []byte("m"))
	b := partition.NewRange([]byte("m"), nil)

	trace.RecordPage(b, 3, 1.5, 100, "act-1", time.Millisecond)
	trace.RecordPage(a, 2, 2, 50, "", time.Millisecond)
	trace.RecordPage(b, 1, 0.5, 10, "act-2", time.Millisecond)
	trace.RecordFailure(a, time.Millisecond)
	trace.RecordSplit(a)
	trace.AddDatum("cancellation", "first")
	trace.AddDatum("cancellation", "second")

	clock = clock.Add(time.Second)
	snapshot := trace.Snapshot()

	expected := Snapshot{
		Started:           time.Unix(0, 0),
		Elapsed:           time.Second,
		Pages:             3,
		RequestCharge:     4,
		ResponseSizeBytes: 160,
		ActivityIDs:       []string{"act-1", "act-2"},
		Ranges: []RangeStats{
			{Range: a, Pages: 1, Items: 2, RequestCharge: 2, ResponseSizeBytes: 50, Elapsed: 2 * time.Millisecond, Failures: 1, Split: true},
			{Range: b, Pages: 2, Items: 4, RequestCharge: 2, ResponseSizeBytes: 110, Elapsed: 2 * time.Millisecond},
		},
		Data: map[string]string{"cancellation": "second"},
	}

	diff := cmp.Diff(expected, snapshot)

	if diff != "" {
		t.Fatal(diff)
	}

	trace.RecordPage(a, 1, 1, 1, "act-3", 0)

	if len(snapshot.ActivityIDs) != 2 || snapshot.Pages != 3 {
		t.Fatalf("expected the snapshot not to change after more pages were recorded")
	}
}

func TestNilTrace(t *testing.T) {
	var trace *Trace

	trace.RecordPage(partition.All(), 1, 1, 1, "", 0)
	trace.RecordSplit(partition.All())
	trace.RecordFailure(partition.All(), 0)
	trace.AddDatum("a", "b")

	if trace.Snapshot().Pages != 0 {
		t.Fatalf("expected an empty snapshot")
	}
}

func TestSnapshotLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	trace := New()
	trace.RecordPage(partition.All(), 1, 3, 7, "act", 0)
	trace.AddDatum("cancellation", "deadline")

	logger.Info("done", zap.Object("diagnostics", trace.Snapshot()))

	entries := logs.All()

	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()["diagnostics"].(map[string]interface{})

	if fields["pages"] != 1 {
		t.Fatalf("expected pages to be 1, got %#v", fields["pages"])
	}

	if fields["cancellation"] != "deadline" {
		t.Fatalf("expected cancellation datum, got %#v", fields["cancellation"])
	}
}

func TestTraceExecutionInfo(t *testing.T) {
	trace := New()

	if trace.Snapshot().ExecutionInfo != nil {
		t.Fatalf("expected no execution info before any page reports it")
	}

	trace.RecordExecutionInfo(page.ExecutionInfo{ReverseOrder: true})
	snapshot := trace.Snapshot()
	trace.RecordExecutionInfo(page.ExecutionInfo{ReverseIndexScan: true})

	if diff := cmp.Diff(&page.ExecutionInfo{ReverseOrder: true}, snapshot.ExecutionInfo); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff(&page.ExecutionInfo{ReverseIndexScan: true}, trace.Snapshot().ExecutionInfo); diff != "" {
		t.Fatal(diff)
	}
}
