package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, tenantID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("tenant_id", tenantID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishObligationSubmitted logs grc.obligation.submitted events.
func (p *StubPublisher) PublishObligationSubmitted(_ context.Context, event domain.ObligationSubmittedEvent) error {
	payload := map[string]any{
		"tenant_id":        event.TenantID,
		"year":             event.Key.Year,
		"quarter":          event.Key.Quarter.String(),
		"submitted_by":     event.SubmittedBy,
		"obligation_count": event.ObligationCount,
		"submitted_at":     event.SubmittedAt,
		"metadata":         event.Metadata,
	}
	p.logEvent(EventTypeObligationSubmitted, event.TenantID, event.SubmittedAt, payload)
	return nil
}

// PublishObligationValidated logs grc.obligation.validated events.
func (p *StubPublisher) PublishObligationValidated(_ context.Context, event domain.ObligationValidatedEvent) error {
	payload := map[string]any{
		"tenant_id":      event.TenantID,
		"year":           event.Key.Year,
		"quarter":        event.Key.Quarter.String(),
		"approved_by":    event.ApprovedBy,
		"obligation_ids": event.ObligationIDs,
		"approved_at":    event.ApprovedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent(EventTypeObligationValidated, event.TenantID, event.ApprovedAt, payload)
	return nil
}

// PublishNotification logs generic grc.notification events.
func (p *StubPublisher) PublishNotification(_ context.Context, event domain.NotificationEvent) error {
	payload := map[string]any{
		"tenant_id":  event.TenantID,
		"kind":       event.Kind,
		"emitted_at": event.EmittedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeNotification, event.TenantID, event.EmittedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
