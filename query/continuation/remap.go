package continuation

import (
	"sort"

	"github.com/jrife/xpquery/partition"
)

// Remap maps a continuation onto the current partition topology.
// It returns one entry per range to resume, ordered by range:
//
//   - an entry whose range is still a partition resumes as is
//   - an entry whose range was split resumes on each child with
//     the parent's token; results consumed from a partially
//     consumed page are skipped by identity
//   - an entry whose range was merged into a larger partition
//     resumes on its own range inside that partition
//   - topology ranges covered by neither an entry nor a done
//     range start from the beginning
//
// A nil continuation starts every range from the beginning.
func Remap(continuation *Continuation, topology *partition.Topology) ([]Entry, error) {
	var entries []Entry

	if continuation == nil {
		for _, r := range topology.Ranges() {
			entries = append(entries, Entry{Range: r})
		}

		return entries, nil
	}

	covered := continuation.Done()

	for _, entry := range continuation.Entries() {
		overlapping := topology.Overlapping(entry.Range)

		if len(overlapping) == 0 || len(partition.Gaps(entry.Range, overlapping)) != 0 {
			return nil, malformed("%s is not covered by the partition topology", entry.Range)
		}

		covered = append(covered, entry.Range)

		for _, r := range overlapping {
			sub := entry.Range.Intersect(r)

			if sub.Equal(entry.Range) {
				entries = append(entries, entry)

				continue
			}

			if entry.Skip > 0 && len(entry.Seen) != entry.Skip {
				return nil, malformed("%s was split while a page was partially consumed and the consumed results have no identities", entry.Range)
			}

			entries = append(entries, Entry{Range: sub, Token: entry.Token, Seen: entry.Seen})
		}
	}

	for _, r := range topology.Ranges() {
		for _, gap := range partition.Gaps(r, covered) {
			entries = append(entries, Entry{Range: gap})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return partition.Compare(entries[i].Range, entries[j].Range) < 0
	})

	return entries, nil
}
