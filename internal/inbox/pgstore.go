package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// PgStore is a PostgreSQL-backed inbox Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL inbox store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// PutPending adds or replaces a pending item in a user's inbox.
func (s *PgStore) PutPending(ctx context.Context, userID string, item model.PendingItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inbox_pending (user_id, process_id, department_id, received_at, pending)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, process_id) DO UPDATE
		SET department_id = $3, received_at = $4, pending = $5`,
		userID, item.ProcessID, item.DepartmentID, item.ReceivedAt, item.Pending,
	)
	if err != nil {
		return fmt.Errorf("upsert pending item: %w", err)
	}
	return nil
}

// RemovePending removes the pending item for a process from a user's inbox.
func (s *PgStore) RemovePending(ctx context.Context, userID, processID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM inbox_pending
		WHERE user_id = $1 AND process_id = $2`,
		userID, processID,
	)
	if err != nil {
		return fmt.Errorf("delete pending item: %w", err)
	}
	return nil
}

// Pending returns a user's pending items, oldest first.
func (s *PgStore) Pending(ctx context.Context, userID string) ([]model.PendingItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT process_id, COALESCE(department_id, ''), received_at, pending
		FROM inbox_pending
		WHERE user_id = $1
		ORDER BY received_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	var items []model.PendingItem
	for rows.Next() {
		var item model.PendingItem
		if err := rows.Scan(&item.ProcessID, &item.DepartmentID, &item.ReceivedAt, &item.Pending); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddNotification appends a notification to a user's inbox.
func (s *PgStore) AddNotification(ctx context.Context, userID string, note model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inbox_notifications (id, user_id, process_id, process_name, received_at, is_pending, is_alert)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		note.ID, userID, note.ProcessID, note.ProcessName, note.ReceivedAt, note.IsPending, note.IsAlert,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// RemoveNotifications deletes all of a user's notifications for a process.
func (s *PgStore) RemoveNotifications(ctx context.Context, userID, processID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM inbox_notifications
		WHERE user_id = $1 AND process_id = $2`,
		userID, processID,
	)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

// Notifications returns a user's notifications, newest first.
func (s *PgStore) Notifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, process_id, COALESCE(process_name, ''), received_at, is_pending, is_alert
		FROM inbox_notifications
		WHERE user_id = $1
		ORDER BY received_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notes []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.ProcessID, &n.ProcessName, &n.ReceivedAt, &n.IsPending, &n.IsAlert); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkAlert flags all of a user's notifications for a process as alerts.
func (s *PgStore) MarkAlert(ctx context.Context, userID, processID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inbox_notifications
		SET is_alert = TRUE
		WHERE user_id = $1 AND process_id = $2 AND is_alert = FALSE`,
		userID, processID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark alert: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// StalePending returns every (user, process) pending since before the cutoff.
func (s *PgStore) StalePending(ctx context.Context, cutoff time.Time) ([]StaleItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, process_id
		FROM inbox_pending
		WHERE pending = TRUE AND received_at < $1`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale pending: %w", err)
	}
	defer rows.Close()

	var items []StaleItem
	for rows.Next() {
		var item StaleItem
		if err := rows.Scan(&item.UserID, &item.ProcessID); err != nil {
			return nil, fmt.Errorf("scan stale pending: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountPending returns the total number of pending items across all users.
func (s *PgStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inbox_pending`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return count, nil
}

// HealthCheck verifies the database connection.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
