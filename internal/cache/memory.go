package cache

import (
	"context"
	"sort"
	"sync"
)

type memEntry struct {
	snap *Snapshot
	seq  int64
}

// MemoryStore is a goroutine-safe in-memory Store. It backs tests and the
// ephemeral (no persistence) agent mode.
type MemoryStore struct {
	mu      sync.RWMutex
	spaces  map[string]map[string]*memEntry
	nextSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spaces: make(map[string]map[string]*memEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, namespace, key string) (*Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.spaces[namespace]
	if !ok {
		return nil, false, nil
	}
	e, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	return e.snap.Clone(), true, nil
}

func (m *MemoryStore) Put(ctx context.Context, namespace, key string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.spaces[namespace]
	if !ok {
		ns = make(map[string]*memEntry)
		m.spaces[namespace] = ns
	}
	if e, ok := ns[key]; ok {
		// Replace keeps the original insertion slot.
		e.snap = snap.Clone()
		return nil
	}
	m.nextSeq++
	ns[key] = &memEntry{snap: snap.Clone(), seq: m.nextSeq}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.spaces[namespace]; ok {
		delete(ns, key)
		if len(ns) == 0 {
			delete(m.spaces, namespace)
		}
	}
	return nil
}

func (m *MemoryStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.spaces[namespace]
	if !ok {
		return nil, nil
	}
	type kv struct {
		key string
		seq int64
	}
	entries := make([]kv, 0, len(ns))
	for k, e := range ns {
		entries = append(entries, kv{k, e.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

func (m *MemoryStore) Namespaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.spaces))
	for name := range m.spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) DropNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spaces, namespace)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
