package process

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// MemoryStore is an in-memory Store for testing and single-node dev.
type MemoryStore struct {
	mu         sync.RWMutex
	processes  map[string]model.Process      // key: process ID
	audit      map[string][]model.AuditEntry // key: process ID
	worksheets map[string]model.WorkSheet    // key: processID + "/" + userID
	created    int
}

// NewMemoryStore creates a new in-memory process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processes:  make(map[string]model.Process),
		audit:      make(map[string][]model.AuditEntry),
		worksheets: make(map[string]model.WorkSheet),
	}
}

func worksheetKey(processID, userID string) string {
	return processID + "/" + userID
}

// CreateProcess persists a new process.
func (s *MemoryStore) CreateProcess(_ context.Context, proc model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[proc.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("process %q already exists", proc.ID))
	}

	s.processes[proc.ID] = proc
	s.created++
	return nil
}

// GetProcess retrieves a process by id.
func (s *MemoryStore) GetProcess(_ context.Context, processID string) (model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proc, exists := s.processes[processID]
	if !exists {
		return model.Process{}, model.NewNotFoundError(fmt.Sprintf("process %q not found", processID))
	}
	return proc, nil
}

// UpdateProcess persists an updated process with optimistic locking.
func (s *MemoryStore) UpdateProcess(_ context.Context, proc model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.processes[proc.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("process %q not found", proc.ID))
	}

	// Optimistic lock check.
	if existing.Version != proc.Version {
		return model.NewConflictError(
			fmt.Sprintf("process %q version conflict (expected %d, got %d)", proc.ID, proc.Version, existing.Version),
		)
	}

	proc.Version++
	proc.UpdatedAt = time.Now().UTC()
	s.processes[proc.ID] = proc
	return nil
}

// ListProcesses returns processes matching the filters, newest first.
func (s *MemoryStore) ListProcesses(_ context.Context, filters Filters) ([]model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Process
	for _, proc := range s.processes {
		if filters.DepartmentID != "" && proc.ProgressFor(filters.DepartmentID) == nil {
			continue
		}
		if filters.Completed != nil && proc.Completed != *filters.Completed {
			continue
		}
		result = append(result, proc)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Process{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// CountProcesses returns the total number of processes ever created.
func (s *MemoryStore) CountProcesses(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, nil
}

// AppendAudit adds an entry to a process's audit log.
func (s *MemoryStore) AppendAudit(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit[entry.ProcessID] = append(s.audit[entry.ProcessID], entry)
	return nil
}

// AuditEntries returns all entries for a process in ascending time order.
func (s *MemoryStore) AuditEntries(_ context.Context, processID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.audit[processID]
	result := make([]model.AuditEntry, len(entries))
	copy(result, entries)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Time.Before(result[j].Time)
	})
	return result, nil
}

// GetWorkSheet retrieves the scratch ledger for (process, user).
func (s *MemoryStore) GetWorkSheet(_ context.Context, processID, userID string) (model.WorkSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, exists := s.worksheets[worksheetKey(processID, userID)]
	if !exists {
		return model.WorkSheet{}, model.NewNotFoundError(
			fmt.Sprintf("worksheet for process %q user %q not found", processID, userID),
		)
	}
	return ws, nil
}

// PutWorkSheet creates or replaces a worksheet.
func (s *MemoryStore) PutWorkSheet(_ context.Context, ws model.WorkSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.worksheets[worksheetKey(ws.ProcessID, ws.UserID)] = ws
	return nil
}

// DeleteWorkSheet removes a worksheet.
func (s *MemoryStore) DeleteWorkSheet(_ context.Context, processID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.worksheets, worksheetKey(processID, userID))
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of stored processes. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}
