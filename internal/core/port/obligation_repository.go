package port

import (
	"context"

	"github.com/arklim/grc-obligations/internal/core/domain"
)

// ObligationRepository exposes persistence behavior for obligations and
// their per-quarter update history. It is the only durable source of truth;
// derived views (badges, effective status) are always recomputed from it.
type ObligationRepository interface {
	ListByTenant(ctx context.Context, tenantID string) ([]domain.Obligation, error)
	GetByID(ctx context.Context, id string) (*domain.Obligation, error)
	UpdateFields(ctx context.Context, id string, patch domain.ObligationPatch) (*domain.Obligation, error)

	// UpsertUnsubmittedEntry creates the entry for its quarter key, or
	// overwrites evidence on an existing entry that is still Unsubmitted.
	// An entry that has been Submitted or Approved yields
	// repository.ErrConflict; the write never forks a duplicate key.
	UpsertUnsubmittedEntry(ctx context.Context, entry domain.UpdateEntry) (*domain.UpdateEntry, error)

	// AdvanceEntry performs the atomic compare-and-set transition
	// from -> to for one (obligation, year, quarter) tuple. The store
	// applies the write only while the entry still holds the expected
	// status, so two concurrent transitions of the same item cannot both
	// succeed. Missing entries yield repository.ErrNotFound; entries in
	// any other status yield repository.ErrConflict.
	AdvanceEntry(ctx context.Context, obligationID string, key domain.QuarterKey, from, to domain.AssessmentStatus) (*domain.UpdateEntry, error)
}
