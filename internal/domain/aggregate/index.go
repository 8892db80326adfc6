package aggregate

import (
	"sort"
)

// Index is an immutable mapping from a categorical key to member node ids.
// It is built once during the aggregation pass and only read afterward,
// which is what licenses lock-free sharing across analytics and render
// workers.
type Index struct {
	dimension string
	members   map[string][]string
}

// newIndex starts a mutable index; freeze() seals it.
func newIndex(dimension string) *Index {
	return &Index{dimension: dimension, members: make(map[string][]string)}
}

func (ix *Index) add(key, nodeID string) {
	if key == "" {
		return
	}
	ix.members[key] = append(ix.members[key], nodeID)
}

// freeze sorts member lists for reproducible iteration. After freeze the
// index must not be mutated; nothing outside this package can.
func (ix *Index) freeze() {
	for _, ids := range ix.members {
		sort.Strings(ids)
	}
}

// Dimension returns the categorical dimension this index covers.
func (ix *Index) Dimension() string { return ix.dimension }

// Members returns the node ids under key. The returned slice is shared and
// must be treated as read-only.
func (ix *Index) Members(key string) []string { return ix.members[key] }

// Count returns the member count under key without allocating.
func (ix *Index) Count(key string) int { return len(ix.members[key]) }

// Keys returns all keys, sorted.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.members))
	for k := range ix.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int { return len(ix.members) }
