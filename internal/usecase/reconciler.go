package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/repository"
)

// TenantView is a reconciled read model for one tenant: the canonical
// obligation list plus locally recomputed badge and effective-status views.
type TenantView struct {
	TenantID    string
	Obligations []domain.Obligation
	Badges      BadgeCounts
	Effective   map[string]EffectiveStatus
	RefreshedAt time.Time
}

// Reconciler is the receiving side of the notification channel. A hint is
// treated purely as "invalidate and refetch": the reconciler re-queries the
// store and rebuilds its derived views from scratch, so duplicate, stale,
// or out-of-order hints all converge on the same state.
type Reconciler struct {
	obligations port.ObligationRepository
	calendar    port.QuarterCalendar
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.RWMutex
	views map[string]TenantView
}

// NewReconciler constructs a Reconciler.
func NewReconciler(obligations port.ObligationRepository, calendar port.QuarterCalendar, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		obligations: obligations,
		calendar:    calendar,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		views:       make(map[string]TenantView),
	}
}

// WithClock overrides the reconciler clock for deterministic testing.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Reconcile refetches the canonical obligation list for a tenant and
// recomputes the local badge and effective-status views. Idempotent.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string) (TenantView, error) {
	if tenantID == "" {
		return TenantView{}, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}

	now := r.now()
	obligations, err := r.obligations.ListByTenant(ctx, tenantID)
	if err != nil {
		return TenantView{}, fmt.Errorf("refetch obligations: %w", err)
	}

	view := TenantView{
		TenantID:    tenantID,
		Obligations: obligations,
		RefreshedAt: now,
		Effective:   make(map[string]EffectiveStatus, len(obligations)),
	}

	key, err := r.calendar.CurrentQuarter(ctx, tenantID, now)
	switch {
	case err == nil:
		view.Badges = CountBadges(obligations, key)
		for _, obligation := range obligations {
			view.Effective[obligation.ID] = ResolveEffectiveStatus(obligation, key)
		}
	case errors.Is(err, repository.ErrNotFound):
		// No current review period; badge counts stay zero.
	default:
		return TenantView{}, fmt.Errorf("resolve current quarter: %w", err)
	}

	r.mu.Lock()
	r.views[tenantID] = view
	r.mu.Unlock()

	return view, nil
}

// View returns the last reconciled snapshot for a tenant, if any.
func (r *Reconciler) View(tenantID string) (TenantView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.views[tenantID]
	return view, ok
}

// HandleSubmitted reacts to a submit hint. Only the routing metadata is
// used; the pushed payload never reaches the view.
func (r *Reconciler) HandleSubmitted(ctx context.Context, event domain.ObligationSubmittedEvent) error {
	return r.invalidate(ctx, event.TenantID, string(hintSubmitted))
}

// HandleValidated reacts to an approval hint.
func (r *Reconciler) HandleValidated(ctx context.Context, event domain.ObligationValidatedEvent) error {
	return r.invalidate(ctx, event.TenantID, string(hintValidated))
}

// HandleNotification reacts to a generic inbox hint.
func (r *Reconciler) HandleNotification(ctx context.Context, event domain.NotificationEvent) error {
	return r.invalidate(ctx, event.TenantID, string(hintNotification))
}

func (r *Reconciler) invalidate(ctx context.Context, tenantID, kind string) error {
	if tenantID == "" {
		r.logger.Warn("hint without tenant id ignored", zap.String("hint", kind))
		return nil
	}

	if _, err := r.Reconcile(ctx, tenantID); err != nil {
		r.logger.Warn("reconcile after hint failed",
			zap.String("tenant_id", tenantID),
			zap.String("hint", kind),
			zap.Error(err),
		)
		return err
	}

	return nil
}
