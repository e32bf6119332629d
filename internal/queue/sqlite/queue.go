package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/queue"
)

// Queue implements queue.Queue using SQLite so pending mutations
// survive process restarts.
type Queue struct {
	db *sql.DB

	// Serializes id generation so two enqueues in the same millisecond
	// cannot collide.
	idMutex  sync.Mutex
	lastUnix int64
	lastSeq  int
}

// New creates a new SQLite-backed mutation queue
func New(databasePath string) (*Queue, error) {
	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	q := &Queue{db: db}

	if err := q.runMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return q, nil
}

// nextID derives a creation-time id: unix milliseconds plus a
// per-process sequence suffix for same-tick enqueues.
func (q *Queue) nextID(createdAt time.Time) string {
	q.idMutex.Lock()
	defer q.idMutex.Unlock()

	ms := createdAt.UnixMilli()
	if ms == q.lastUnix {
		q.lastSeq++
	} else {
		q.lastUnix = ms
		q.lastSeq = 0
	}

	return fmt.Sprintf("%d-%04d", ms, q.lastSeq)
}

// Enqueue appends a mutation and returns its assigned id
func (q *Queue) Enqueue(ctx context.Context, m *domain.QueuedMutation) (string, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	id := q.nextID(m.CreatedAt)

	header, err := json.Marshal(m.Header)
	if err != nil {
		return "", fmt.Errorf("failed to encode headers: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queued_mutations (id, method, url, header, body, created_at, retry_count, max_retries)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.Method, m.URL, string(header), m.Body, m.CreatedAt.UnixMilli(), m.RetryCount, m.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	return id, nil
}

// DequeueAll returns every pending mutation in FIFO order
func (q *Queue) DequeueAll(ctx context.Context) ([]*domain.QueuedMutation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, method, url, header, body, created_at, retry_count, max_retries
		 FROM queued_mutations ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []*domain.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}

	return mutations, rows.Err()
}

// Remove deletes a mutation by id
func (q *Queue) Remove(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM queued_mutations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove mutation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removal: %w", err)
	}
	if affected == 0 {
		return queue.ErrNotFound
	}

	return nil
}

// IncrementRetry bumps the retry count for a mutation and returns the
// new count
func (q *Queue) IncrementRetry(ctx context.Context, id string) (int, error) {
	result, err := q.db.ExecContext(ctx,
		"UPDATE queued_mutations SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check retry update: %w", err)
	}
	if affected == 0 {
		return 0, queue.ErrNotFound
	}

	var count int
	err = q.db.QueryRowContext(ctx,
		"SELECT retry_count FROM queued_mutations WHERE id = ?", id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count: %w", err)
	}

	return count, nil
}

// Depth returns the number of pending mutations
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_mutations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}
	return count, nil
}

// Close closes the queue's backing store
func (q *Queue) Close() error {
	return q.db.Close()
}

func scanMutation(rows *sql.Rows) (*domain.QueuedMutation, error) {
	var (
		m         domain.QueuedMutation
		header    string
		createdAt int64
	)
	if err := rows.Scan(&m.ID, &m.Method, &m.URL, &header, &m.Body, &createdAt, &m.RetryCount, &m.MaxRetries); err != nil {
		return nil, fmt.Errorf("failed to scan mutation: %w", err)
	}

	m.CreatedAt = time.UnixMilli(createdAt)
	m.Header = make(http.Header)
	if err := json.Unmarshal([]byte(header), &m.Header); err != nil {
		return nil, fmt.Errorf("failed to decode headers for %s: %w", m.ID, err)
	}

	return &m, nil
}

// Ensure Queue implements the interface
var _ queue.Queue = (*Queue)(nil)
