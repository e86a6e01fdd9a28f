package inbox

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, nil, zap.NewNop())
	return svc, store
}

func TestService_EnqueueAndDequeue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Enqueue(ctx, "u1", "p1", "accounts_1", "d-accounts"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	item, err := svc.Dequeue(ctx, "u1")
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if item.ProcessID != "p1" {
		t.Errorf("process_id = %q, want p1", item.ProcessID)
	}
	if !item.Pending {
		t.Error("dequeued item should be pending")
	}

	notes, err := svc.Notifications(ctx, "u1")
	if err != nil {
		t.Fatalf("Notifications() error = %v", err)
	}
	if len(notes) != 1 || notes[0].ProcessName != "accounts_1" {
		t.Errorf("notifications = %+v, want one for accounts_1", notes)
	}
	if !notes[0].IsPending {
		t.Error("enqueue notification should be marked pending")
	}
}

func TestService_Dequeue_oldestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	times := []time.Time{base.Add(time.Hour), base}
	i := 0
	svc.now = func() time.Time {
		t := times[i]
		i++
		return t
	}

	svc.Enqueue(ctx, "u1", "p-late", "n", "")
	svc.Enqueue(ctx, "u1", "p-early", "n", "")

	item, err := svc.Dequeue(ctx, "u1")
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if item.ProcessID != "p-early" {
		t.Errorf("process_id = %q, want p-early", item.ProcessID)
	}
}

func TestService_Dequeue_empty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Dequeue(context.Background(), "u1")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestService_Ack_clearsItemAndNotifications(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.Enqueue(ctx, "u1", "p1", "accounts_1", "d-accounts")
	svc.Enqueue(ctx, "u1", "p2", "accounts_2", "d-accounts")

	if err := svc.Ack(ctx, "u1", "p1"); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	items, _ := svc.Pending(ctx, "u1")
	if len(items) != 1 || items[0].ProcessID != "p2" {
		t.Errorf("pending = %+v, want only p2", items)
	}
	notes, _ := svc.Notifications(ctx, "u1")
	if len(notes) != 1 || notes[0].ProcessID != "p2" {
		t.Errorf("notifications = %+v, want only p2", notes)
	}
}

func TestService_Notify_noPendingItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Notify(ctx, "u1", "p1", "accounts_1"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	items, _ := svc.Pending(ctx, "u1")
	if len(items) != 0 {
		t.Errorf("pending = %d, want 0", len(items))
	}
	notes, _ := svc.Notifications(ctx, "u1")
	if len(notes) != 1 || notes[0].IsPending {
		t.Errorf("notifications = %+v, want one informational", notes)
	}
}
