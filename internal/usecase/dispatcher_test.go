package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

func TestDispatcherFillsEventMetadata(t *testing.T) {
	publisher := &publisherMock{}
	fixed := time.Date(2024, time.August, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewNotificationDispatcher(publisher, zaptest.NewLogger(t))
	dispatcher.now = func() time.Time { return fixed }

	dispatcher.Notify(context.Background(), domain.NotificationEvent{TenantID: "tenant-a", Kind: "inbox_refresh"})

	if len(publisher.notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(publisher.notes))
	}
	note := publisher.notes[0]
	if note.EventID == "" {
		t.Fatalf("expected generated event id")
	}
	if !note.EmittedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %s", note.EmittedAt)
	}
}

func TestDispatcherQueuesOnPublishFailure(t *testing.T) {
	publisher := &publisherMock{err: errors.New("broker unreachable")}
	dispatcher := NewNotificationDispatcher(publisher, zaptest.NewLogger(t))

	// A publish failure never surfaces to the caller.
	dispatcher.ObligationSubmitted(context.Background(), domain.ObligationSubmittedEvent{TenantID: "tenant-a", Key: q3})
	dispatcher.ObligationValidated(context.Background(), domain.ObligationValidatedEvent{TenantID: "tenant-a", Key: q3})

	if depth := dispatcher.QueueDepth(); depth != 2 {
		t.Fatalf("expected 2 queued hints, got %d", depth)
	}

	// Reconnect: the queue drains in FIFO order.
	publisher.err = nil
	if delivered := dispatcher.Flush(context.Background()); delivered != 2 {
		t.Fatalf("expected 2 delivered on flush, got %d", delivered)
	}
	if dispatcher.QueueDepth() != 0 {
		t.Fatalf("queue should be empty after flush")
	}
	if len(publisher.submitted) != 1 || len(publisher.validated) != 1 {
		t.Fatalf("expected both hints delivered, got %d/%d", len(publisher.submitted), len(publisher.validated))
	}
}

func TestDispatcherFlushStopsAtFirstFailure(t *testing.T) {
	publisher := &publisherMock{err: errors.New("broker unreachable")}
	dispatcher := NewNotificationDispatcher(publisher, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		dispatcher.Notify(context.Background(), domain.NotificationEvent{
			TenantID: "tenant-a",
			Kind:     fmt.Sprintf("hint-%d", i),
		})
	}
	if dispatcher.QueueDepth() != 3 {
		t.Fatalf("expected 3 queued hints, got %d", dispatcher.QueueDepth())
	}

	// Broker still down: nothing delivered, everything re-queued in order.
	if delivered := dispatcher.Flush(context.Background()); delivered != 0 {
		t.Fatalf("expected 0 delivered while broker is down, got %d", delivered)
	}
	if dispatcher.QueueDepth() != 3 {
		t.Fatalf("failed flush must keep the queue intact, got depth %d", dispatcher.QueueDepth())
	}

	publisher.err = nil
	if delivered := dispatcher.Flush(context.Background()); delivered != 3 {
		t.Fatalf("expected 3 delivered after reconnect, got %d", delivered)
	}
	for i, note := range publisher.notes {
		if note.Kind != fmt.Sprintf("hint-%d", i) {
			t.Fatalf("hints delivered out of order: %v", publisher.notes)
		}
	}
}

func TestDispatcherShedsOldestBeyondCapacity(t *testing.T) {
	publisher := &publisherMock{err: errors.New("broker unreachable")}
	dispatcher := NewNotificationDispatcher(publisher, zaptest.NewLogger(t)).WithQueueCapacity(2)

	for i := 0; i < 3; i++ {
		dispatcher.Notify(context.Background(), domain.NotificationEvent{
			TenantID: "tenant-a",
			Kind:     fmt.Sprintf("hint-%d", i),
		})
	}

	if dispatcher.QueueDepth() != 2 {
		t.Fatalf("expected queue capped at 2, got %d", dispatcher.QueueDepth())
	}
	if dispatcher.Dropped() != 1 {
		t.Fatalf("expected 1 shed hint, got %d", dispatcher.Dropped())
	}

	publisher.err = nil
	dispatcher.Flush(context.Background())

	// The oldest hint was shed; the two newest survive.
	if len(publisher.notes) != 2 || publisher.notes[0].Kind != "hint-1" || publisher.notes[1].Kind != "hint-2" {
		t.Fatalf("expected hints 1 and 2 to survive, got %v", publisher.notes)
	}
}

func TestDispatcherNilPublisherIsNoop(t *testing.T) {
	dispatcher := NewNotificationDispatcher(nil, zaptest.NewLogger(t))

	dispatcher.Notify(context.Background(), domain.NotificationEvent{TenantID: "tenant-a"})
	if dispatcher.QueueDepth() != 0 {
		t.Fatalf("nil publisher must not queue hints")
	}
}
