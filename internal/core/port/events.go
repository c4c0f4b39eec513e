package port

import (
	"context"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

// EventPublisher publishes change hints to the message bus. Hints are
// best-effort and carry routing metadata only.
type EventPublisher interface {
	PublishObligationSubmitted(ctx context.Context, event domain.ObligationSubmittedEvent) error
	PublishObligationValidated(ctx context.Context, event domain.ObligationValidatedEvent) error
	PublishNotification(ctx context.Context, event domain.NotificationEvent) error
}
