package continuation_test

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/xpquery/partition"
	"github.com/jrife/xpquery/query/continuation"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
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

func topology(t *testing.T, ranges ...partition.Range) *partition.Topology {
	topology, err := partition.NewTopology(ranges...)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return topology
}

type entry struct {
	Range string
	Token string
	Fresh bool
	Skip  int
	Seen  []string
}

func summarize(entries []continuation.Entry) []entry {
	result := []entry{}

	for _, e := range entries {
		result = append(result, entry{Range: e.Range.String(), Token: string(e.Token), Fresh: e.Token == nil, Skip: e.Skip, Seen: e.Seen})
	}

	return result
}

func build(t *testing.T, entries []continuation.Entry, done ...partition.Range) *continuation.Continuation {
	c := continuation.New("fingerprint")

	for _, e := range entries {
		if err := c.Put(e); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	for _, d := range done {
		if err := c.MarkDone(d); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	return c
}

func TestPut(t *testing.T) {
	c := continuation.New("f")

	if err := c.Put(continuation.Entry{Range: r("m", "")}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := c.Put(continuation.Entry{Range: r("a", "m"), Token: []byte("t")}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	testCases := map[string]struct {
		entry continuation.Entry
	}{
		"overlap": {
			entry: continuation.Entry{Range: r("c", "p")},
		},
		"empty": {
			entry: continuation.Entry{Range: r("z", "a")},
		},
		"negative-skip": {
			entry: continuation.Entry{Range: r("", "a"), Skip: -1},
		},
		"seen-mismatch": {
			entry: continuation.Entry{Range: r("", "a"), Skip: 2, Seen: []string{"x"}},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if err := c.Put(testCase.entry); !errors.Is(err, continuation.ErrMalformedContinuation) {
				t.Fatalf("expected ErrMalformedContinuation, got %#v", err)
			}
		})
	}

	if err := c.MarkDone(r("b", "c")); !errors.Is(err, continuation.ErrMalformedContinuation) {
		t.Fatalf("expected ErrMalformedContinuation, got %#v", err)
	}

	diff := cmp.Diff([]entry{
		{Range: "[61,6d)", Token: "t"},
		{Range: "[6d,)", Fresh: true},
	}, summarize(c.Entries()))

	if diff != "" {
		t.Fatal(diff)
	}

	if e, ok := c.Get(r("a", "m")); !ok || string(e.Token) != "t" {
		t.Fatalf("expected to find the entry for [a,m)")
	}

	if _, ok := c.Get(r("a", "n")); ok {
		t.Fatalf("expected not to find an entry for [a,n)")
	}
}

func TestEncodeDecode(t *testing.T) {
	testCases := map[string]struct {
		entries []continuation.Entry
		done    []partition.Range
	}{
		"empty": {},
		"fresh-and-token": {
			entries: []continuation.Entry{
				{Range: r("", "m")},
				{Range: r("m", ""), Token: []byte("token"), Skip: 2, Seen: []string{"a", "b"}},
			},
		},
		"empty-token": {
			entries: []continuation.Entry{
				{Range: r("", ""), Token: []byte{}},
			},
		},
		"done": {
			entries: []continuation.Entry{
				{Range: r("m", ""), Token: []byte("token")},
			},
			done: []partition.Range{r("", "m")},
		},
		"compressed": {
			entries: []continuation.Entry{
				{Range: r("", ""), Token: []byte(strings.Repeat("token", 500)), Skip: 1},
			},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			c := build(t, testCase.entries, testCase.done...)
			c.Yielded = 42

			encoded, err := continuation.Encode(c)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			decoded, err := continuation.Decode(encoded)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			diff := cmp.Diff(summarize(c.Entries()), summarize(decoded.Entries()))

			if diff != "" {
				t.Fatal(diff)
			}

			if decoded.Fingerprint != "fingerprint" || decoded.Yielded != 42 {
				t.Fatalf("expected fingerprint and yielded to survive, got %q %d", decoded.Fingerprint, decoded.Yielded)
			}

			if len(decoded.Done()) != len(testCase.done) {
				t.Fatalf("expected %d done ranges, got %d", len(testCase.done), len(decoded.Done()))
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := continuation.Encode(build(t, []continuation.Entry{{Range: r("", ""), Token: []byte("t")}}))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	testCases := map[string]string{
		"not-base64": "!!!",
		"empty":      "",
		"bad-flag":   "Ag",
		"bad-s2":     "Af______________",
		"truncated":  valid[:len(valid)-2],
		"no-version": "AA",
		"bad-wire":   "AA0",
	}

	for name, encoded := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := continuation.Decode(encoded); !errors.Is(err, continuation.ErrMalformedContinuation) {
				t.Fatalf("expected ErrMalformedContinuation, got %#v", err)
			}
		})
	}
}

func TestRemap(t *testing.T) {
	testCases := map[string]struct {
		entries  []continuation.Entry
		done     []partition.Range
		topology []partition.Range
		result   []entry
		err      error
	}{
		"exact": {
			entries:  []continuation.Entry{{Range: r("", "m"), Token: []byte("t1"), Skip: 1}, {Range: r("m", ""), Token: []byte("t2")}},
			topology: []partition.Range{r("", "m"), r("m", "")},
			result:   []entry{{Range: "[,6d)", Token: "t1", Skip: 1}, {Range: "[6d,)", Token: "t2"}},
		},
		"split": {
			entries:  []continuation.Entry{{Range: r("", ""), Token: []byte("t"), Skip: 2, Seen: []string{"a", "b"}}},
			topology: []partition.Range{r("", "m"), r("m", "")},
			result:   []entry{{Range: "[,6d)", Token: "t", Seen: []string{"a", "b"}}, {Range: "[6d,)", Token: "t", Seen: []string{"a", "b"}}},
		},
		"split-without-identities": {
			entries:  []continuation.Entry{{Range: r("", ""), Token: []byte("t"), Skip: 2}},
			topology: []partition.Range{r("", "m"), r("m", "")},
			err:      continuation.ErrMalformedContinuation,
		},
		"split-fresh": {
			entries:  []continuation.Entry{{Range: r("", "")}},
			topology: []partition.Range{r("", "m"), r("m", "")},
			result:   []entry{{Range: "[,6d)", Fresh: true}, {Range: "[6d,)", Fresh: true}},
		},
		"merge": {
			entries:  []continuation.Entry{{Range: r("", "m"), Token: []byte("t1")}, {Range: r("m", ""), Token: []byte("t2")}},
			topology: []partition.Range{r("", "")},
			result:   []entry{{Range: "[,6d)", Token: "t1"}, {Range: "[6d,)", Token: "t2"}},
		},
		"done-is-skipped": {
			entries:  []continuation.Entry{{Range: r("m", ""), Token: []byte("t")}},
			done:     []partition.Range{r("", "m")},
			topology: []partition.Range{r("", "f"), r("f", "m"), r("m", "")},
			result:   []entry{{Range: "[6d,)", Token: "t"}},
		},
		"uncovered-starts-fresh": {
			entries:  []continuation.Entry{{Range: r("m", ""), Token: []byte("t")}},
			topology: []partition.Range{r("", "m"), r("m", "")},
			result:   []entry{{Range: "[,6d)", Fresh: true}, {Range: "[6d,)", Token: "t"}},
		},
		"not-covered": {
			entries:  []continuation.Entry{{Range: r("", "m"), Token: []byte("t")}},
			topology: []partition.Range{r("a", "")},
			err:      continuation.ErrMalformedContinuation,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			c := build(t, testCase.entries, testCase.done...)
			entries, err := continuation.Remap(c, topology(t, testCase.topology...))

			if !errors.Is(err, testCase.err) {
				t.Fatalf("expected err to be %#v, got %#v", testCase.err, err)
			}

			if testCase.err != nil {
				return
			}

			diff := cmp.Diff(testCase.result, summarize(entries))

			if diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestRemapNil(t *testing.T) {
	entries, err := continuation.Remap(nil, topology(t, r("", "m"), r("m", "")))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	diff := cmp.Diff([]entry{{Range: "[,6d)", Fresh: true}, {Range: "[6d,)", Fresh: true}}, summarize(entries))

	if diff != "" {
		t.Fatal(diff)
	}
}

func randomContinuation(seed int64, n int) *continuation.Continuation {
	random := rand.New(rand.NewSource(seed))
	c := continuation.New(fmt.Sprintf("f%d", seed))
	c.Yielded = random.Int63n(1000)
	var min []byte

	for i := 0; i < n; i++ {
		max := []byte(fmt.Sprintf("%04d", (i+1)*10))

		if i == n-1 {
			max = nil
		}

		rng := partition.NewRange(min, max)

		switch random.Intn(3) {
		case 0:
			c.MarkDone(rng)
		case 1:
			c.Put(continuation.Entry{Range: rng})
		default:
			skip := random.Intn(4)
			seen := []string(nil)

			for j := 0; j < skip; j++ {
				seen = append(seen, fmt.Sprintf("id-%d", random.Intn(100)))
			}

			c.Put(continuation.Entry{Range: rng, Token: []byte(strings.Repeat("x", random.Intn(300))), Skip: skip, Seen: seen})
		}

		min = max
	}

	return c
}

func TestEncodeDecodeProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("decode(encode(c)) encodes to the same string", prop.ForAll(
		func(seed int64, n int) bool {
			encoded, err := continuation.Encode(randomContinuation(seed, n))

			if err != nil {
				return false
			}

			decoded, err := continuation.Decode(encoded)

			if err != nil {
				return false
			}

			reencoded, err := continuation.Encode(decoded)

			return err == nil && reencoded == encoded
		},
		gen.Int64(),
		gen.IntRange(1, 40),
	))

	properties.Property("remap onto the same topology is the identity for entries", prop.ForAll(
		func(seed int64, n int) bool {
			c := randomContinuation(seed, n)
			ranges := append(c.Done(), func() []partition.Range {
				var ranges []partition.Range

				for _, e := range c.Entries() {
					ranges = append(ranges, e.Range)
				}

				return ranges
			}()...)

			topology, err := partition.NewTopology(ranges...)

			if err != nil {
				return false
			}

			entries, err := continuation.Remap(c, topology)

			if err != nil {
				return false
			}

			return cmp.Diff(summarize(c.Entries()), summarize(entries)) == ""
		},
		gen.Int64(),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
