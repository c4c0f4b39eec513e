package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

type hintHandlerMock struct {
	submitted     []domain.ObligationSubmittedEvent
	validated     []domain.ObligationValidatedEvent
	notifications []domain.NotificationEvent
	err           error
}

func (m *hintHandlerMock) HandleSubmitted(_ context.Context, event domain.ObligationSubmittedEvent) error {
	m.submitted = append(m.submitted, event)
	return m.err
}

func (m *hintHandlerMock) HandleValidated(_ context.Context, event domain.ObligationValidatedEvent) error {
	m.validated = append(m.validated, event)
	return m.err
}

func (m *hintHandlerMock) HandleNotification(_ context.Context, event domain.NotificationEvent) error {
	m.notifications = append(m.notifications, event)
	return m.err
}

func hintMessage(t *testing.T, eventType string, payload any) *sarama.ConsumerMessage {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	envelope := map[string]any{
		"event_id":   "event-1",
		"event_type": eventType,
		"tenant_id":  "tenant-a",
		"timestamp":  time.Date(2024, 8, 14, 9, 30, 0, 0, time.UTC),
		"version":    schemaVersion,
		"payload":    json.RawMessage(raw),
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	return &sarama.ConsumerMessage{Topic: "grc.hints", Value: value}
}

func TestHandleMessageSubmitted(t *testing.T) {
	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	submittedAt := time.Date(2024, 8, 14, 9, 30, 0, 0, time.UTC)
	msg := hintMessage(t, "grc.obligation.submitted", submittedPayload{
		TenantID:        "tenant-a",
		Year:            2024,
		Quarter:         "Q3",
		SubmittedBy:     "user-1",
		ObligationCount: 3,
		SubmittedAt:     submittedAt,
	})

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(handler.submitted) != 1 {
		t.Fatalf("expected 1 submitted hint, got %d", len(handler.submitted))
	}

	event := handler.submitted[0]
	if event.EventID != "event-1" {
		t.Fatalf("unexpected event id: %s", event.EventID)
	}
	if event.TenantID != "tenant-a" {
		t.Fatalf("unexpected tenant: %s", event.TenantID)
	}
	if event.Key != (domain.QuarterKey{Year: 2024, Quarter: domain.Q3}) {
		t.Fatalf("unexpected quarter key: %+v", event.Key)
	}
	if event.ObligationCount != 3 {
		t.Fatalf("unexpected obligation count: %d", event.ObligationCount)
	}
	if !event.SubmittedAt.Equal(submittedAt) {
		t.Fatalf("unexpected submitted at: %s", event.SubmittedAt)
	}
}

func TestHandleMessageValidatedUnprefixedType(t *testing.T) {
	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	msg := hintMessage(t, "obligation.validated", validatedPayload{
		TenantID:      "tenant-a",
		Year:          2024,
		Quarter:       "Q2",
		ApprovedBy:    "reviewer-1",
		ObligationIDs: []string{"ob-1", "ob-2"},
		ApprovedAt:    time.Date(2024, 9, 2, 16, 45, 0, 0, time.UTC),
	})

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(handler.validated) != 1 {
		t.Fatalf("expected 1 validated hint, got %d", len(handler.validated))
	}

	event := handler.validated[0]
	if event.ApprovedBy != "reviewer-1" {
		t.Fatalf("unexpected approver: %s", event.ApprovedBy)
	}
	if len(event.ObligationIDs) != 2 {
		t.Fatalf("unexpected obligation ids: %v", event.ObligationIDs)
	}
	if event.Key.Quarter != domain.Q2 {
		t.Fatalf("unexpected quarter: %v", event.Key.Quarter)
	}
}

func TestHandleMessageNotification(t *testing.T) {
	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	msg := hintMessage(t, "grc.notification", notificationPayload{
		TenantID:  "tenant-b",
		Kind:      "review-reminder",
		EmittedAt: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
	})

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(handler.notifications) != 1 {
		t.Fatalf("expected 1 notification hint, got %d", len(handler.notifications))
	}
	if handler.notifications[0].Kind != "review-reminder" {
		t.Fatalf("unexpected kind: %s", handler.notifications[0].Kind)
	}
}

func TestHandleMessageUnknownTypeIgnored(t *testing.T) {
	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	msg := hintMessage(t, "grc.unrelated.event", map[string]any{"foo": "bar"})

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(handler.submitted)+len(handler.validated)+len(handler.notifications) != 0 {
		t.Fatal("expected no hints dispatched for unknown event type")
	}
}

func TestHandleMessageDecodeErrors(t *testing.T) {
	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}

	garbage := &sarama.ConsumerMessage{Value: []byte("not-json")}
	if err := consumer.HandleMessage(context.Background(), garbage); err == nil {
		t.Fatal("expected error for malformed envelope")
	}

	badQuarter := hintMessage(t, "grc.obligation.submitted", submittedPayload{
		TenantID: "tenant-a",
		Year:     2024,
		Quarter:  "Q9",
	})
	if err := consumer.HandleMessage(context.Background(), badQuarter); err == nil {
		t.Fatal("expected error for invalid quarter")
	}

	if len(handler.submitted) != 0 {
		t.Fatal("expected no hints dispatched on decode failure")
	}
}

func TestHandleMessageRoundTripFromPublisher(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	event := domain.ObligationSubmittedEvent{
		EventID:         "event-99",
		TenantID:        "tenant-a",
		Key:             domain.QuarterKey{Year: 2023, Quarter: domain.Q4},
		SubmittedBy:     "user-2",
		ObligationCount: 1,
		SubmittedAt:     time.Date(2023, 12, 20, 10, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishObligationSubmitted(context.Background(), event); err != nil {
		t.Fatalf("PublishObligationSubmitted returned error: %v", err)
	}

	msg := <-asyncProducer.input
	value, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("Value.Encode returned error: %v", err)
	}

	handler := &hintHandlerMock{}
	consumer := NewHintConsumer(handler, zaptest.NewLogger(t))

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Topic: msg.Topic, Value: value}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(handler.submitted) != 1 {
		t.Fatalf("expected 1 submitted hint, got %d", len(handler.submitted))
	}
	if got := handler.submitted[0]; got.EventID != event.EventID || got.Key != event.Key {
		t.Fatalf("round-tripped hint mismatch: %+v", got)
	}
}
