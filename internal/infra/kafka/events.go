package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/infra/config"
)

const schemaVersion = "1.0"

// Event type suffixes; the producer prepends the configured topic prefix.
const (
	EventTypeObligationSubmitted = "obligation.submitted"
	EventTypeObligationValidated = "obligation.validated"
	EventTypeNotification        = "notification"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	TenantID  string           `json:"tenant_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, tenantID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		TenantID:  tenantID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		// Tenant-keyed so all hints for one tenant land on one partition in
		// emission order.
		Key:   sarama.StringEncoder(tenantID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submittedPayload is the wire shape shared by publisher and consumer. It
// carries routing metadata only, never obligation state.
type submittedPayload struct {
	TenantID        string         `json:"tenant_id"`
	Year            int            `json:"year"`
	Quarter         string         `json:"quarter"`
	SubmittedBy     string         `json:"submitted_by"`
	ObligationCount int            `json:"obligation_count"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type validatedPayload struct {
	TenantID      string         `json:"tenant_id"`
	Year          int            `json:"year"`
	Quarter       string         `json:"quarter"`
	ApprovedBy    string         `json:"approved_by"`
	ObligationIDs []string       `json:"obligation_ids"`
	ApprovedAt    time.Time      `json:"approved_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type notificationPayload struct {
	TenantID  string         `json:"tenant_id"`
	Kind      string         `json:"kind"`
	EmittedAt time.Time      `json:"emitted_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PublishObligationSubmitted publishes grc.obligation.submitted events.
func (p *EventPublisher) PublishObligationSubmitted(ctx context.Context, event domain.ObligationSubmittedEvent) error {
	payload := submittedPayload{
		TenantID:        event.TenantID,
		Year:            event.Key.Year,
		Quarter:         event.Key.Quarter.String(),
		SubmittedBy:     event.SubmittedBy,
		ObligationCount: event.ObligationCount,
		SubmittedAt:     event.SubmittedAt.UTC(),
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeObligationSubmitted, event.TenantID, event.SubmittedAt, payload)
}

// PublishObligationValidated publishes grc.obligation.validated events.
func (p *EventPublisher) PublishObligationValidated(ctx context.Context, event domain.ObligationValidatedEvent) error {
	payload := validatedPayload{
		TenantID:      event.TenantID,
		Year:          event.Key.Year,
		Quarter:       event.Key.Quarter.String(),
		ApprovedBy:    event.ApprovedBy,
		ObligationIDs: event.ObligationIDs,
		ApprovedAt:    event.ApprovedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeObligationValidated, event.TenantID, event.ApprovedAt, payload)
}

// PublishNotification publishes generic grc.notification events.
func (p *EventPublisher) PublishNotification(ctx context.Context, event domain.NotificationEvent) error {
	payload := notificationPayload{
		TenantID:  event.TenantID,
		Kind:      event.Kind,
		EmittedAt: event.EmittedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeNotification, event.TenantID, event.EmittedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
