package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

func TestOutboxRepository_EnqueueAndPullFIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	var ids []string
	for _, event := range []string{"order.placed", "order.status_changed", "order.cancelled"} {
		saved, err := repo.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "order-1",
			EventType:     event,
			Payload:       []byte(`{}`),
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if saved.ID == "" {
			t.Fatal("expected generated id")
		}
		ids = append(ids, saved.ID)
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[1] {
		t.Fatalf("expected FIFO order, got %s, %s", pending[0].ID, pending[1].ID)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 3 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if len(repo.AllPending()) != 0 {
		t.Fatal("sent message must leave pending set")
	}

	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}
