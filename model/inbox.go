package model

import "time"

// PendingItem is one unit of work waiting in a user's inbox: a process that
// has been routed to them, annotated with the workflow they should follow
// when acting on it.
type PendingItem struct {
	ProcessID    string    `json:"process_id"`
	DepartmentID string    `json:"department_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
	Pending      bool      `json:"pending"`
}

// Notification is an informational inbox entry. IsAlert is set by the
// background sweep once the matching pending item has aged past the
// configured threshold.
type Notification struct {
	ID          string    `json:"id"`
	ProcessID   string    `json:"process_id"`
	ProcessName string    `json:"process_name,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	IsPending   bool      `json:"is_pending"`
	IsAlert     bool      `json:"is_alert"`
}
