package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SQLiteStore is a durable Store on top of the agent's SQLite database.
// The schema lives in internal/db/migrations; insertion order is the
// AUTOINCREMENT seq column, which a replace deliberately does not touch.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-open (and migrated) database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (*Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, headers, body, stored_at FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, key)

	var (
		status   int
		headers  string
		body     []byte
		storedAt int64
	)
	if err := row.Scan(&status, &headers, &body, &storedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cache entry: %w", err)
	}

	hdr := make(http.Header)
	if err := json.Unmarshal([]byte(headers), &hdr); err != nil {
		return nil, false, fmt.Errorf("decode cached headers: %w", err)
	}
	return &Snapshot{
		Status:   status,
		Header:   hdr,
		Body:     body,
		StoredAt: time.Unix(storedAt, 0).UTC(),
	}, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, snap *Snapshot) error {
	headers, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	storedAt := snap.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	// Update in place first so an existing key keeps its seq (FIFO order).
	res, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET status = ?, headers = ?, body = ?, stored_at = ? WHERE namespace = ? AND key = ?`,
		snap.Status, string(headers), snap.Body, storedAt.Unix(), namespace, key)
	if err != nil {
		return fmt.Errorf("replace cache entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, status, headers, body, stored_at) VALUES (?, ?, ?, ?, ?, ?)`,
		namespace, key, snap.Status, string(headers), snap.Body, storedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE namespace = ? ORDER BY seq ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("enumerate cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace ASC`)
	if err != nil {
		return nil, fmt.Errorf("enumerate namespaces: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) DropNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	return nil
}

// Close is a no-op: the database handle is owned by the service context.
func (s *SQLiteStore) Close() error { return nil }
