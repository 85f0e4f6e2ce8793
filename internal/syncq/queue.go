// Package syncq holds the durable queue of pending writes and the
// coordinator that drains it to the remote sync endpoint.
package syncq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Item is one queued write: an opaque payload plus its creation time.
// Items are retained until a sync attempt confirms remote acceptance.
type Item struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Queue is the durable pending-writes list. The coordinator is its only
// reader and writer besides Enqueue producers.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	// Items returns all pending items in insertion order.
	Items(ctx context.Context) ([]Item, error)
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
}

// MemoryQueue is an in-memory Queue for tests and ephemeral mode.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Item
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *MemoryQueue) Items(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Item(nil), q.items...), nil
}

func (q *MemoryQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	return nil
}

func (q *MemoryQueue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// SQLiteQueue persists items in the sync_items table.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue wraps an already-open (and migrated) database handle.
func NewSQLiteQueue(db *sql.DB) *SQLiteQueue {
	return &SQLiteQueue{db: db}
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, item Item) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_items (id, payload, created_at) VALUES (?, ?, ?)`,
		item.ID, string(item.Payload), item.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("enqueue sync item: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) Items(ctx context.Context) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM sync_items ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sync items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			id        string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, err
		}
		items = append(items, Item{
			ID:        id,
			Payload:   json.RawMessage(payload),
			CreatedAt: time.Unix(createdAt, 0).UTC(),
		})
	}
	return items, rows.Err()
}

func (q *SQLiteQueue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_items`); err != nil {
		return fmt.Errorf("clear sync queue: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) Size(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_items`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sync items: %w", err)
	}
	return n, nil
}
