package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// MemoryStore is an in-memory inbox Store for testing and single-node dev.
type MemoryStore struct {
	mu            sync.RWMutex
	pending       map[string][]model.PendingItem  // key: user ID
	notifications map[string][]model.Notification // key: user ID
}

// NewMemoryStore creates a new in-memory inbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:       make(map[string][]model.PendingItem),
		notifications: make(map[string][]model.Notification),
	}
}

// PutPending adds or replaces a pending item in a user's inbox.
func (s *MemoryStore) PutPending(_ context.Context, userID string, item model.PendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.pending[userID]
	for i := range items {
		if items[i].ProcessID == item.ProcessID {
			items[i] = item
			return nil
		}
	}
	s.pending[userID] = append(items, item)
	return nil
}

// RemovePending removes the pending item for a process from a user's inbox.
func (s *MemoryStore) RemovePending(_ context.Context, userID, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.pending[userID]
	for i := range items {
		if items[i].ProcessID == processID {
			s.pending[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

// Pending returns a user's pending items, oldest first.
func (s *MemoryStore) Pending(_ context.Context, userID string) ([]model.PendingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.pending[userID]
	result := make([]model.PendingItem, len(items))
	copy(result, items)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

// AddNotification appends a notification to a user's inbox.
func (s *MemoryStore) AddNotification(_ context.Context, userID string, note model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications[userID] = append(s.notifications[userID], note)
	return nil
}

// RemoveNotifications deletes all of a user's notifications for a process.
func (s *MemoryStore) RemoveNotifications(_ context.Context, userID, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := s.notifications[userID]
	kept := notes[:0]
	for _, n := range notes {
		if n.ProcessID != processID {
			kept = append(kept, n)
		}
	}
	s.notifications[userID] = kept
	return nil
}

// Notifications returns a user's notifications, newest first.
func (s *MemoryStore) Notifications(_ context.Context, userID string) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notifications[userID]
	result := make([]model.Notification, len(notes))
	copy(result, notes)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// MarkAlert flags all of a user's notifications for a process as alerts.
func (s *MemoryStore) MarkAlert(_ context.Context, userID, processID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flagged int
	notes := s.notifications[userID]
	for i := range notes {
		if notes[i].ProcessID == processID && !notes[i].IsAlert {
			notes[i].IsAlert = true
			flagged++
		}
	}
	return flagged, nil
}

// StalePending returns every (user, process) pending since before the cutoff.
func (s *MemoryStore) StalePending(_ context.Context, cutoff time.Time) ([]StaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []StaleItem
	for userID, items := range s.pending {
		for _, item := range items {
			if item.Pending && item.ReceivedAt.Before(cutoff) {
				result = append(result, StaleItem{UserID: userID, ProcessID: item.ProcessID})
			}
		}
	}
	return result, nil
}

// CountPending returns the total number of pending items across all users.
func (s *MemoryStore) CountPending(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	for _, items := range s.pending {
		total += len(items)
	}
	return total, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}
