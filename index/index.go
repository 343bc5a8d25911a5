// Package index holds the candidate corpus and answers nearest-neighbor
// queries over it. The corpus is an immutable snapshot: a refresh swaps
// the whole slice under the lock, never mutating entries a reader holds.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/fingerprint"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

// Index is a linear-scan nearest-neighbor index over catalog entries.
// Corpus sizes are hundreds to low thousands of cards; a scan over the
// snapshot is cheap and keeps the ranking exact. The snapshot swap
// leaves room for an approximate index behind the same interface.
type Index struct {
	mu      sync.RWMutex
	entries []types.CatalogEntry
	kind    types.FingerprintKind
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// SetCorpus atomically replaces the corpus snapshot. Entries must be
// homogeneous in fingerprint kind; the caller (the corpus loader)
// guarantees this at build time.
func (ix *Index) SetCorpus(entries []types.CatalogEntry, kind types.FingerprintKind) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = entries
	ix.kind = kind
}

// Size returns the number of entries in the current snapshot.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Kind returns the fingerprint kind of the current corpus.
func (ix *Index) Kind() types.FingerprintKind {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.kind
}

// FindMatches ranks every corpus entry by distance to the query,
// ascending. Ties keep corpus insertion order (stable sort). An empty
// corpus yields an empty ranking, not an error. A fingerprint-kind or
// hash-width mismatch between query and corpus is a configuration bug
// and is returned as an error.
func (ix *Index) FindMatches(query types.Fingerprint) ([]types.MatchCandidate, error) {
	ix.mu.RLock()
	entries := ix.entries
	kind := ix.kind
	ix.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil
	}
	if query.Kind != kind {
		return nil, fmt.Errorf("query fingerprint kind %s does not match corpus kind %s", query.Kind, kind)
	}

	candidates := make([]types.MatchCandidate, 0, len(entries))
	for i := range entries {
		d, err := fingerprint.Distance(query, entries[i].Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("distance to %s: %w", entries[i].ID, err)
		}
		candidates = append(candidates, types.MatchCandidate{
			Entry:    &entries[i],
			Distance: d,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	return candidates, nil
}

// TopK returns the first k candidates of a ranking, or fewer when the
// ranking is shorter.
func TopK(candidates []types.MatchCandidate, k int) []types.MatchCandidate {
	if len(candidates) <= k {
		return candidates
	}
	return candidates[:k]
}
