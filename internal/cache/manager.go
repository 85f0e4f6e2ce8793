package cache

import (
	"context"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

// Manager owns the two live namespaces of a cache generation: the precache
// namespace seeded at install and the runtime namespace populated
// opportunistically. Exactly these two survive an activation cycle.
type Manager struct {
	store   Store
	version string
}

// NewManager creates a manager for the given generation tag.
func NewManager(store Store, version string) *Manager {
	return &Manager{store: store, version: version}
}

// Version returns the active generation tag.
func (m *Manager) Version() string { return m.version }

// PrecacheNamespace returns the precache namespace for the active generation.
func (m *Manager) PrecacheNamespace() string { return "precache-" + m.version }

// RuntimeNamespace returns the runtime namespace for the active generation.
func (m *Manager) RuntimeNamespace() string { return "runtime-" + m.version }

// Store exposes the underlying store for trimming.
func (m *Manager) Store() Store { return m.store }

// Match looks a key up across the live namespaces, precache first.
func (m *Manager) Match(ctx context.Context, key string) (*Snapshot, bool) {
	for _, ns := range []string{m.PrecacheNamespace(), m.RuntimeNamespace()} {
		snap, ok, err := m.store.Get(ctx, ns, key)
		if err != nil {
			logging.Warnf("cache match %s in %s: %v", key, ns, err)
			continue
		}
		if ok {
			return snap, true
		}
	}
	return nil, false
}

// MatchRuntime looks a key up in the runtime namespace only.
func (m *Manager) MatchRuntime(ctx context.Context, key string) (*Snapshot, bool) {
	snap, ok, err := m.store.Get(ctx, m.RuntimeNamespace(), key)
	if err != nil {
		logging.Warnf("cache match %s in %s: %v", key, m.RuntimeNamespace(), err)
		return nil, false
	}
	return snap, ok
}

// PutRuntime stores a snapshot in the runtime namespace. Storage errors are
// best-effort: logged and reported, never fatal to the request path.
func (m *Manager) PutRuntime(ctx context.Context, key string, snap *Snapshot) error {
	if err := m.store.Put(ctx, m.RuntimeNamespace(), key, snap); err != nil {
		logging.Warnf("cache put %s: %v", key, err)
		return err
	}
	return nil
}

// PutPrecache stores a snapshot in the precache namespace.
func (m *Manager) PutPrecache(ctx context.Context, key string, snap *Snapshot) error {
	if err := m.store.Put(ctx, m.PrecacheNamespace(), key, snap); err != nil {
		logging.Warnf("precache put %s: %v", key, err)
		return err
	}
	return nil
}

// Activate deletes every namespace except the two live ones and returns the
// names it dropped. Stale generations are garbage after activation.
func (m *Manager) Activate(ctx context.Context) ([]string, error) {
	names, err := m.store.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	live := map[string]bool{
		m.PrecacheNamespace(): true,
		m.RuntimeNamespace():  true,
	}
	var dropped []string
	for _, name := range names {
		if live[name] {
			continue
		}
		if err := m.store.DropNamespace(ctx, name); err != nil {
			logging.Warnf("activate: drop namespace %s: %v", name, err)
			continue
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}
