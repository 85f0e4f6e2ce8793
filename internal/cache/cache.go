// Package cache provides named, versioned stores of response snapshots with
// insertion-order preserving enumeration and bounded-size trimming.
package cache

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Snapshot is a stored copy of an upstream response.
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone returns a deep copy of the snapshot. Response bodies are single-read
// streams upstream; once snapshotted, callers that both return and persist a
// response must work on independent copies.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		Status:   s.Status,
		Header:   make(http.Header, len(s.Header)),
		Body:     make([]byte, len(s.Body)),
		StoredAt: s.StoredAt,
	}
	for k, vs := range s.Header {
		cp.Header[k] = append([]string(nil), vs...)
	}
	copy(cp.Body, s.Body)
	return cp
}

// Key canonicalizes a request identity to a store key. Only retrieval
// requests are ever cached, but the method is kept in the key so that a
// future method can never collide with a GET entry.
func Key(method, rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return strings.ToUpper(method) + " " + rawURL
}

// Store is the abstract key-value capability backing the cache namespaces.
// Implementations must preserve insertion order in Keys and treat a Put on an
// existing key as an in-place replace that keeps the original insertion slot
// (FIFO eviction, not LRU).
type Store interface {
	// Get returns the snapshot for key in namespace, if present.
	Get(ctx context.Context, namespace, key string) (*Snapshot, bool, error)

	// Put stores a snapshot. Replacing an existing key keeps its insertion order.
	Put(ctx context.Context, namespace, key string, snap *Snapshot) error

	// Delete removes a single entry. Missing keys are not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Keys enumerates the namespace's keys in insertion order.
	Keys(ctx context.Context, namespace string) ([]string, error)

	// Namespaces lists all namespaces that currently hold entries.
	Namespaces(ctx context.Context) ([]string, error)

	// DropNamespace removes a namespace and all of its entries.
	DropNamespace(ctx context.Context, namespace string) error

	Close() error
}
