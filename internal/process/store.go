package process

import (
	"context"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Store persists processes, their append-only audit log, and per-user
// worksheets.
type Store interface {
	// CreateProcess persists a new process. Returns CONFLICT if the id
	// already exists.
	CreateProcess(ctx context.Context, proc model.Process) error

	// GetProcess retrieves a process by id. Returns NOT_FOUND if absent.
	GetProcess(ctx context.Context, processID string) (model.Process, error)

	// UpdateProcess persists an updated process with optimistic locking.
	// The version must match the stored version; CONFLICT on mismatch.
	UpdateProcess(ctx context.Context, proc model.Process) error

	// ListProcesses returns summaries matching the filters, newest first.
	ListProcesses(ctx context.Context, filters Filters) ([]model.Process, error)

	// CountProcesses returns the total number of processes ever created.
	// Used for sequential process naming.
	CountProcesses(ctx context.Context) (int, error)

	// AppendAudit adds an entry to a process's audit log. Entries are never
	// updated or deleted.
	AppendAudit(ctx context.Context, entry model.AuditEntry) error

	// AuditEntries returns all audit entries for a process in ascending
	// time order.
	AuditEntries(ctx context.Context, processID string) ([]model.AuditEntry, error)

	// GetWorkSheet retrieves the scratch ledger for (process, user).
	// Returns NOT_FOUND if the user has not contributed at the current step.
	GetWorkSheet(ctx context.Context, processID, userID string) (model.WorkSheet, error)

	// PutWorkSheet creates or replaces a worksheet.
	PutWorkSheet(ctx context.Context, ws model.WorkSheet) error

	// DeleteWorkSheet removes a worksheet. Deleting an absent worksheet is
	// not an error.
	DeleteWorkSheet(ctx context.Context, processID, userID string) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// Filters are optional filters for listing processes.
type Filters struct {
	DepartmentID string
	Completed    *bool
	Limit        int
	Offset       int
}
