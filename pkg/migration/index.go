package migration

import (
	"iter"
	"slices"
	"sort"
	"sync"
)

// Index holds the entries of a context keyed by normalized path. Iteration
// is in ascending path order.
type Index struct {
	mu      sync.Mutex
	entries map[string]*Entry
	keys    []string
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{entries: make(map[string]*Entry)}
}

// Get returns the entry registered for path
func (idx *Index) Get(path string) (*Entry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[path]
	return e, ok
}

// GetOrCreate returns the entry registered for path, registering the entry
// returned by create when there is none. The lookup and the registration
// happen under one lock.
func (idx *Index) GetOrCreate(path string, create func() *Entry) *Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if e, ok := idx.entries[path]; ok {
		return e
	}
	e := create()
	idx.insert(path, e)
	return e
}

// Put registers e under its path, replacing any entry already there.
// Property references attached to the replaced entry move to e.
func (idx *Index) Put(e *Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if old, ok := idx.entries[e.path]; ok {
		if old != e {
			for _, ref := range old.properties {
				e.addPropertyReference(ref)
			}
		}
		idx.entries[e.path] = e
		return
	}
	idx.insert(e.path, e)
}

// Len returns the number of registered entries
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.keys)
}

// All yields the entries registered when iteration starts, in path order.
// Entries registered while iterating are not visited.
func (idx *Index) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		idx.mu.Lock()
		snapshot := make([]*Entry, 0, len(idx.keys))
		for _, k := range idx.keys {
			snapshot = append(snapshot, idx.entries[k])
		}
		idx.mu.Unlock()

		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

func (idx *Index) insert(path string, e *Entry) {
	idx.entries[path] = e
	i := sort.SearchStrings(idx.keys, path)
	idx.keys = slices.Insert(idx.keys, i, path)
}
