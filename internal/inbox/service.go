package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Service is the inbox queue consumed by the workflow engine and exposed
// over the API.
type Service struct {
	store   Store
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an inbox service. Metrics may be nil in tests.
func NewService(store Store, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Enqueue adds a pending item plus a matching notification to a user's
// inbox. Called by the engine whenever a process is routed to a user.
func (s *Service) Enqueue(ctx context.Context, userID, processID, processName, departmentID string) error {
	now := s.now().UTC()
	if err := s.store.PutPending(ctx, userID, model.PendingItem{
		ProcessID:    processID,
		DepartmentID: departmentID,
		ReceivedAt:   now,
		Pending:      true,
	}); err != nil {
		return err
	}
	if err := s.store.AddNotification(ctx, userID, model.Notification{
		ID:          uuid.New().String(),
		ProcessID:   processID,
		ProcessName: processName,
		ReceivedAt:  now,
		IsPending:   true,
	}); err != nil {
		return err
	}
	s.refreshPendingGauge(ctx)
	return nil
}

// Notify adds an informational notification without a pending item. Used
// for terminal routing when a process completes.
func (s *Service) Notify(ctx context.Context, userID, processID, processName string) error {
	return s.store.AddNotification(ctx, userID, model.Notification{
		ID:          uuid.New().String(),
		ProcessID:   processID,
		ProcessName: processName,
		ReceivedAt:  s.now().UTC(),
	})
}

// Ack removes the pending item and notifications for a process from a
// user's inbox. Called when the user hands the process off.
func (s *Service) Ack(ctx context.Context, userID, processID string) error {
	if err := s.store.RemovePending(ctx, userID, processID); err != nil {
		return err
	}
	if err := s.store.RemoveNotifications(ctx, userID, processID); err != nil {
		return err
	}
	s.refreshPendingGauge(ctx)
	return nil
}

// Dequeue returns the oldest pending item without removing it. Returns
// NOT_FOUND when the inbox is empty.
func (s *Service) Dequeue(ctx context.Context, userID string) (model.PendingItem, error) {
	items, err := s.store.Pending(ctx, userID)
	if err != nil {
		return model.PendingItem{}, err
	}
	if len(items) == 0 {
		return model.PendingItem{}, model.NewNotFoundError("inbox is empty")
	}
	return items[0], nil
}

// Pending returns a user's pending items, oldest first.
func (s *Service) Pending(ctx context.Context, userID string) ([]model.PendingItem, error) {
	return s.store.Pending(ctx, userID)
}

// Notifications returns a user's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.store.Notifications(ctx, userID)
}

func (s *Service) refreshPendingGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.store.CountPending(ctx)
	if err != nil {
		s.logger.Warn("inbox pending count failed", zap.Error(err))
		return
	}
	s.metrics.InboxPendingItems.Set(float64(count))
}
