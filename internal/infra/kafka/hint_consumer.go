package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

// HintHandler is the receiving side of the change-hint channel, usually the
// usecase.Reconciler. Handlers must be idempotent: hints may arrive
// duplicated or out of order.
type HintHandler interface {
	HandleSubmitted(ctx context.Context, event domain.ObligationSubmittedEvent) error
	HandleValidated(ctx context.Context, event domain.ObligationValidatedEvent) error
	HandleNotification(ctx context.Context, event domain.NotificationEvent) error
}

// HintConsumer decodes hint envelopes and routes them to the handler.
type HintConsumer struct {
	handler HintHandler
	logger  *zap.Logger
}

// NewHintConsumer constructs a consumer feeding the given handler.
func NewHintConsumer(handler HintHandler, logger *zap.Logger) *HintConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HintConsumer{handler: handler, logger: logger}
}

// HandleMessage decodes a Kafka message and dispatches by event type.
func (c *HintConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope struct {
		EventID   string          `json:"event_id"`
		EventType string          `json:"event_type"`
		TenantID  string          `json:"tenant_id"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode hint envelope: %w", err)
	}

	switch suffix(envelope.EventType) {
	case EventTypeObligationSubmitted:
		var payload submittedPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("decode submitted payload: %w", err)
		}
		quarter, err := domain.ParseQuarter(payload.Quarter)
		if err != nil {
			return fmt.Errorf("decode submitted payload: %w", err)
		}
		return c.handler.HandleSubmitted(ctx, domain.ObligationSubmittedEvent{
			EventID:         envelope.EventID,
			TenantID:        payload.TenantID,
			Key:             domain.QuarterKey{Year: payload.Year, Quarter: quarter},
			SubmittedBy:     payload.SubmittedBy,
			ObligationCount: payload.ObligationCount,
			SubmittedAt:     payload.SubmittedAt,
		})

	case EventTypeObligationValidated:
		var payload validatedPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("decode validated payload: %w", err)
		}
		quarter, err := domain.ParseQuarter(payload.Quarter)
		if err != nil {
			return fmt.Errorf("decode validated payload: %w", err)
		}
		return c.handler.HandleValidated(ctx, domain.ObligationValidatedEvent{
			EventID:       envelope.EventID,
			TenantID:      payload.TenantID,
			Key:           domain.QuarterKey{Year: payload.Year, Quarter: quarter},
			ApprovedBy:    payload.ApprovedBy,
			ObligationIDs: payload.ObligationIDs,
			ApprovedAt:    payload.ApprovedAt,
		})

	case EventTypeNotification:
		var payload notificationPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("decode notification payload: %w", err)
		}
		return c.handler.HandleNotification(ctx, domain.NotificationEvent{
			EventID:   envelope.EventID,
			TenantID:  payload.TenantID,
			Kind:      payload.Kind,
			EmittedAt: payload.EmittedAt,
		})

	default:
		c.logger.Debug("ignoring unknown hint type", zap.String("event_type", envelope.EventType))
		return nil
	}
}

// suffix strips the configured topic prefix from a dotted event type.
func suffix(eventType string) string {
	for _, known := range []string{EventTypeObligationSubmitted, EventTypeObligationValidated, EventTypeNotification} {
		if eventType == known || strings.HasSuffix(eventType, "."+known) {
			return known
		}
	}
	return eventType
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *HintConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *HintConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim drains one partition claim, marking every message. Handler
// failures are logged and skipped: a missed hint only delays the next
// refetch, it can never corrupt canonical state.
func (c *HintConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("hint message not processed",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*HintConsumer)(nil)

// RunHintConsumer joins the consumer group and processes hint topics until
// the context is cancelled.
func RunHintConsumer(ctx context.Context, brokers []string, group string, topics []string, consumer *HintConsumer, logger *zap.Logger) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer client.Close()

	go func() {
		for err := range client.Errors() {
			logger.Warn("hint consumer error", zap.Error(err))
		}
	}()

	for {
		if err := client.Consume(ctx, topics, consumer); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("hint consume session ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
