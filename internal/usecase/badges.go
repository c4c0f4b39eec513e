package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/repository"
)

// BadgeCounts carries the derived pending-action counters for a tenant.
// HasPeriod is false when the calendar has no current quarter, in which
// case both counts are zero.
type BadgeCounts struct {
	PendingSubmission int
	PendingApproval   int
	Key               domain.QuarterKey
	HasPeriod         bool
}

// BadgeService derives role badge counts. Counts are recomputed from a full
// scan of the tenant's obligations on every call; there is no incremental
// delta bookkeeping, so the badge can never drift from the store.
type BadgeService struct {
	obligations port.ObligationRepository
	calendar    port.QuarterCalendar
	now         func() time.Time
}

// NewBadgeService constructs a BadgeService.
func NewBadgeService(obligations port.ObligationRepository, calendar port.QuarterCalendar) *BadgeService {
	return &BadgeService{
		obligations: obligations,
		calendar:    calendar,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the badge clock for deterministic testing.
func (s *BadgeService) WithClock(clock func() time.Time) *BadgeService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Counts computes the pending counters for a tenant's current quarter.
func (s *BadgeService) Counts(ctx context.Context, tenantID string) (BadgeCounts, error) {
	if tenantID == "" {
		return BadgeCounts{}, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}

	key, err := s.calendar.CurrentQuarter(ctx, tenantID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return BadgeCounts{}, nil
		}
		return BadgeCounts{}, fmt.Errorf("resolve current quarter: %w", err)
	}

	obligations, err := s.obligations.ListByTenant(ctx, tenantID)
	if err != nil {
		return BadgeCounts{}, fmt.Errorf("list obligations: %w", err)
	}

	return CountBadges(obligations, key), nil
}

// CountBadges filters an already-loaded obligation set against the given
// quarter. Exposed separately so reconcilers can recompute locally from the
// same canonical list they just fetched.
func CountBadges(obligations []domain.Obligation, key domain.QuarterKey) BadgeCounts {
	counts := BadgeCounts{Key: key, HasPeriod: true}

	for _, obligation := range obligations {
		if !obligation.IsActive() {
			continue
		}

		entry, ok := obligation.EntryFor(key)
		if !ok || entry.AssessmentStatus == domain.AssessmentUnsubmitted {
			counts.PendingSubmission++
		}
		if ok && entry.AssessmentStatus == domain.AssessmentSubmitted {
			counts.PendingApproval++
		}
	}

	return counts
}
