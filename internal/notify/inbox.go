package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout        = 5 * time.Second
	defaultListLimit = 50
)

// Inbox is a Channel that keeps notifications so learners can read them later.
type Inbox interface {
	Channel
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// ErrNotificationNotFound is returned by MarkRead for an unknown id.
var ErrNotificationNotFound = errors.New("notification not found")

// MemoryInbox keeps notifications in memory. Used in tests and when no
// database is configured.
type MemoryInbox struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{}
}

func (m *MemoryInbox) Deliver(_ context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	m.mu.Lock()
	m.items = append(m.items, n)
	m.mu.Unlock()
	return nil
}

// List returns the learner's notifications, newest first.
func (m *MemoryInbox) List(_ context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Notification{}
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInbox) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range m.items {
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				now := time.Now()
				m.items[i].ReadAt = &now
			}
			return nil
		}
	}
	return ErrNotificationNotFound
}

// Delivered returns a copy of everything delivered so far.
func (m *MemoryInbox) Delivered() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification{}, m.items...)
}

// PostgresInbox stores notifications in the notifications table.
type PostgresInbox struct {
	pool *pgxpool.Pool
}

func NewPostgresInbox(pool *pgxpool.Pool) (*PostgresInbox, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresInbox{pool: pool}, nil
}

func (p *PostgresInbox) Deliver(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if n.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload := n.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = p.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, string(data), createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (p *PostgresInbox) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, kind, title, body, data, read_at, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n    Notification
			kind string
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &data, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = Kind(kind)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification data: %w", err)
			}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (p *PostgresInbox) MarkRead(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := p.pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
