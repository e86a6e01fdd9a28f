// Package inbox manages per-user queues of pending work items and
// notifications. The workflow engine enqueues on every transition and acks
// when the user hands a process off; a background sweeper flags items that
// have waited too long.
package inbox

import (
	"context"
	"time"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Store persists per-user inbox state.
type Store interface {
	// PutPending adds or replaces a pending item in a user's inbox.
	PutPending(ctx context.Context, userID string, item model.PendingItem) error

	// RemovePending removes the pending item for a process from a user's
	// inbox. Removing an absent item is not an error.
	RemovePending(ctx context.Context, userID, processID string) error

	// Pending returns a user's pending items, oldest first.
	Pending(ctx context.Context, userID string) ([]model.PendingItem, error)

	// AddNotification appends a notification to a user's inbox.
	AddNotification(ctx context.Context, userID string, note model.Notification) error

	// RemoveNotifications deletes all of a user's notifications for a
	// process.
	RemoveNotifications(ctx context.Context, userID, processID string) error

	// Notifications returns a user's notifications, newest first.
	Notifications(ctx context.Context, userID string) ([]model.Notification, error)

	// MarkAlert flags all of a user's notifications for a process as
	// alerts. Returns the number flagged.
	MarkAlert(ctx context.Context, userID, processID string) (int, error)

	// StalePending returns every (user, process) whose pending item was
	// received before the cutoff and is still pending.
	StalePending(ctx context.Context, cutoff time.Time) ([]StaleItem, error)

	// CountPending returns the total number of pending items across all
	// users.
	CountPending(ctx context.Context) (int, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// StaleItem identifies one aged pending item.
type StaleItem struct {
	UserID    string
	ProcessID string
}
