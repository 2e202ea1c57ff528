package hash

import (
	"sort"
	"strings"
	"sync"
)

// biMap keeps both lookup directions in one structure so they can never
// disagree. Paths are keyed by their lowercase form; the stored path keeps
// the spelling it was registered with.
type biMap struct {
	paths map[ResourceID]string
	ids   map[string]ResourceID
}

func newBiMap(capacity int) biMap {
	return biMap{
		paths: make(map[ResourceID]string, capacity),
		ids:   make(map[string]ResourceID, capacity),
	}
}

// put inserts the pair, replacing any pair that shares either side.
func (m *biMap) put(id ResourceID, path string) {
	key := strings.ToLower(path)
	if old, ok := m.paths[id]; ok {
		delete(m.ids, strings.ToLower(old))
	}
	if old, ok := m.ids[key]; ok {
		delete(m.paths, old)
	}
	m.paths[id] = path
	m.ids[key] = id
}

func (m *biMap) path(id ResourceID) (string, bool) {
	p, ok := m.paths[id]
	return p, ok
}

func (m *biMap) id(path string) (ResourceID, bool) {
	id, ok := m.ids[strings.ToLower(path)]
	return id, ok
}

// Resolver is a bidirectional id/path table. It is safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	table biMap
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{table: newBiMap(0)}
}

// Register computes the id of path, records the pair and returns the id.
func (r *Resolver) Register(path string) ResourceID {
	id := Compute(path)
	r.Insert(id, path)
	return id
}

// Insert records a pair whose id was supplied externally, such as by a hash
// list. The id is not recomputed.
func (r *Resolver) Insert(id ResourceID, path string) {
	r.mu.Lock()
	r.table.put(id, path)
	r.mu.Unlock()
}

// Resolve returns the path registered for id. When none is known it returns
// the id's hexadecimal form and false; that form is a stable identity, not
// an error.
func (r *Resolver) Resolve(id ResourceID) (string, bool) {
	r.mu.RLock()
	p, ok := r.table.path(id)
	r.mu.RUnlock()
	if !ok {
		return id.String(), false
	}
	return p, true
}

// Name returns Resolve's string, dropping the known flag.
func (r *Resolver) Name(id ResourceID) string {
	name, _ := r.Resolve(id)
	return name
}

// Lookup returns the id registered for path, without computing one.
func (r *Resolver) Lookup(path string) (ResourceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.id(path)
}

// Len returns the number of registered pairs.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table.paths)
}

// IDs returns every registered id in ascending order.
func (r *Resolver) IDs() []ResourceID {
	r.mu.RLock()
	ids := make([]ResourceID, 0, len(r.table.paths))
	for id := range r.table.paths {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
