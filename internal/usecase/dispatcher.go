package usecase

import (
	"context"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
)

const defaultHintQueueCap = 1024

// NotificationDispatcher fans out change hints after committed transitions.
// Delivery is at-most-once and strictly off the request's critical path: a
// publish failure is queued locally (FIFO) and flushed on reconnect, never
// surfaced to the caller as an operation failure. Hints carry routing
// metadata only, so a stale or duplicated hint can never override canonical
// state — receivers refetch instead of trusting the payload.
type NotificationDispatcher struct {
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	queue    []queuedHint
	queueCap int
	dropped  int
}

type hintKind string

const (
	hintSubmitted    hintKind = "obligation_submitted"
	hintValidated    hintKind = "obligation_validated"
	hintNotification hintKind = "notification"
)

type queuedHint struct {
	kind      hintKind
	submitted domain.ObligationSubmittedEvent
	validated domain.ObligationValidatedEvent
	note      domain.NotificationEvent
}

// NewNotificationDispatcher constructs a dispatcher over the given publisher.
func NewNotificationDispatcher(publisher port.EventPublisher, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		queueCap:  defaultHintQueueCap,
	}
}

// WithQueueCapacity bounds the local hint queue.
func (d *NotificationDispatcher) WithQueueCapacity(capacity int) *NotificationDispatcher {
	if capacity > 0 {
		d.queueCap = capacity
	}
	return d
}

// ObligationSubmitted emits a hint toward the tenant's approvers.
func (d *NotificationDispatcher) ObligationSubmitted(ctx context.Context, event domain.ObligationSubmittedEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.SubmittedAt.IsZero() {
		event.SubmittedAt = d.now()
	}
	d.emit(ctx, queuedHint{kind: hintSubmitted, submitted: event})
}

// ObligationValidated emits a hint toward the tenant's submitters.
func (d *NotificationDispatcher) ObligationValidated(ctx context.Context, event domain.ObligationValidatedEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.ApprovedAt.IsZero() {
		event.ApprovedAt = d.now()
	}
	d.emit(ctx, queuedHint{kind: hintValidated, validated: event})
}

// Notify emits a generic inbox-refresh hint.
func (d *NotificationDispatcher) Notify(ctx context.Context, event domain.NotificationEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = d.now()
	}
	d.emit(ctx, queuedHint{kind: hintNotification, note: event})
}

func (d *NotificationDispatcher) emit(ctx context.Context, hint queuedHint) {
	if d.publisher == nil {
		return
	}

	if err := d.publish(ctx, hint); err != nil {
		d.logger.Warn("hint publish failed, queuing for reconnect",
			zap.String("hint", string(hint.kind)),
			zap.Error(err),
		)
		d.enqueue(hint)
	}
}

func (d *NotificationDispatcher) publish(ctx context.Context, hint queuedHint) error {
	switch hint.kind {
	case hintSubmitted:
		return d.publisher.PublishObligationSubmitted(ctx, hint.submitted)
	case hintValidated:
		return d.publisher.PublishObligationValidated(ctx, hint.validated)
	default:
		return d.publisher.PublishNotification(ctx, hint.note)
	}
}

func (d *NotificationDispatcher) enqueue(hint queuedHint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) >= d.queueCap {
		// At-most-once: shedding the oldest hint is harmless because a later
		// refetch covers it.
		d.queue = d.queue[1:]
		d.dropped++
	}
	d.queue = append(d.queue, hint)
}

// Flush replays queued hints in FIFO order, stopping at the first failure
// so ordering is preserved for the next attempt. It returns the number of
// hints delivered.
func (d *NotificationDispatcher) Flush(ctx context.Context) int {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	delivered := 0
	for i, hint := range pending {
		if err := d.publish(ctx, hint); err != nil {
			d.logger.Warn("hint flush interrupted",
				zap.Int("delivered", delivered),
				zap.Int("remaining", len(pending)-i),
				zap.Error(err),
			)

			d.mu.Lock()
			d.queue = append(pending[i:], d.queue...)
			d.mu.Unlock()
			return delivered
		}
		delivered++
	}

	return delivered
}

// QueueDepth reports how many hints await reconnect.
func (d *NotificationDispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Dropped reports how many hints were shed to the queue capacity bound.
func (d *NotificationDispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
