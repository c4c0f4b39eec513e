package port

import (
	"context"
	"time"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

// QuarterCalendar maps a date to the review period it falls inside.
// Period boundaries are configured externally per tenant.
type QuarterCalendar interface {
	// CurrentQuarter returns the quarter key containing today for the
	// tenant, or repository.ErrNotFound when no period covers the date.
	CurrentQuarter(ctx context.Context, tenantID string, today time.Time) (domain.QuarterKey, error)
}
