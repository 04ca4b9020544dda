package partition_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/xpquery/partition"
)

func r(min, max string) partition.Range {
	var rng partition.Range

	if min != "" {
		rng.Min = []byte(min)
	}

	if max != "" {
		rng.Max = []byte(max)
	}

	return rng
}

func TestRangeOverlaps(t *testing.T) {
	testCases := map[string]struct {
		a        partition.Range
		b        partition.Range
		overlaps bool
	}{
		"all-all": {
			a:        partition.All(),
			b:        partition.All(),
			overlaps: true,
		},
		"all-bounded": {
			a:        partition.All(),
			b:        r("b", "c"),
			overlaps: true,
		},
		"adjacent": {
			a:        r("a", "b"),
			b:        r("b", "c"),
			overlaps: false,
		},
		"adjacent-unbounded": {
			a:        r("", "b"),
			b:        r("b", ""),
			overlaps: false,
		},
		"partial": {
			a:        r("a", "c"),
			b:        r("b", "d"),
			overlaps: true,
		},
		"empty": {
			a:        r("c", "a"),
			b:        partition.All(),
			overlaps: false,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if testCase.a.Overlaps(testCase.b) != testCase.overlaps {
				t.Fatalf("expected %s.Overlaps(%s) to be %t", testCase.a, testCase.b, testCase.overlaps)
			}

			if testCase.b.Overlaps(testCase.a) != testCase.overlaps {
				t.Fatalf("expected %s.Overlaps(%s) to be %t", testCase.b, testCase.a, testCase.overlaps)
			}
		})
	}
}

func TestRangeIntersect(t *testing.T) {
	testCases := map[string]struct {
		a      partition.Range
		b      partition.Range
		result partition.Range
	}{
		"all-bounded": {
			a:      partition.All(),
			b:      r("b", "c"),
			result: r("b", "c"),
		},
		"partial": {
			a:      r("a", "c"),
			b:      r("b", "d"),
			result: r("b", "c"),
		},
		"unbounded-max": {
			a:      r("a", ""),
			b:      r("b", ""),
			result: r("b", ""),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			result := testCase.a.Intersect(testCase.b)

			if !result.Equal(testCase.result) {
				t.Fatalf("expected %s, got %s", testCase.result, result)
			}
		})
	}

	if !r("a", "b").Intersect(r("c", "d")).IsEmpty() {
		t.Fatalf("expected disjoint ranges to have an empty intersection")
	}
}

func TestRangeContainsAndCovers(t *testing.T) {
	if !partition.All().Contains([]byte{}) {
		t.Fatalf("expected the whole key space to contain the empty key")
	}

	if r("a", "b").Contains([]byte("b")) {
		t.Fatalf("expected the upper bound to be exclusive")
	}

	if !r("a", "").Contains([]byte{0xff, 0xff}) {
		t.Fatalf("expected an unbounded range to contain every key above its lower bound")
	}

	if !partition.All().Covers(r("a", "b")) {
		t.Fatalf("expected the whole key space to cover [a,b)")
	}

	if r("a", "b").Covers(r("a", "")) {
		t.Fatalf("expected [a,b) not to cover [a,)")
	}
}

func TestRangeSplit(t *testing.T) {
	left, right, err := r("a", "z").Split([]byte("m"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	diff := cmp.Diff([]string{"[61,6d)", "[6d,7a)"}, []string{left.String(), right.String()})

	if diff != "" {
		t.Fatal(diff)
	}

	if _, _, err := r("a", "z").Split([]byte("a")); err == nil {
		t.Fatalf("expected splitting at the lower bound to fail")
	}

	if _, _, err := r("a", "z").Split([]byte("z")); err == nil {
		t.Fatalf("expected splitting at the upper bound to fail")
	}
}

func TestRangeID(t *testing.T) {
	if r("a", "b").ID() == r("a", "").ID() {
		t.Fatalf("expected distinct ranges to have distinct identities")
	}

	if r("a", "b").ID() != partition.NewRange([]byte("a"), []byte("b")).ID() {
		t.Fatalf("expected equal ranges to have the same identity")
	}
}
