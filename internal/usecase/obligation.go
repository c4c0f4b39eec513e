package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/repository"
)

var (
	// ErrPermissionDenied indicates the actor lacks the role required for the operation.
	ErrPermissionDenied = errors.New("insufficient permissions")
	// ErrObligationNotFound is returned when the obligation does not exist within the caller's tenant.
	ErrObligationNotFound = errors.New("obligation not found")
	// ErrStateConflict indicates the transition is not legal from the entry's current state.
	ErrStateConflict = errors.New("entry state conflict")
	// ErrInvalidQuarter indicates the requested review period is malformed.
	ErrInvalidQuarter = errors.New("invalid quarter key")
	// ErrValidation indicates missing or invalid request fields.
	ErrValidation = errors.New("invalid request")
)

// FailureReason classifies why a single batch item was rejected.
type FailureReason string

const (
	ReasonNotFound    FailureReason = "NotFound"
	ReasonNotEligible FailureReason = "NotEligible"
	ReasonInactive    FailureReason = "Inactive"
	ReasonUnavailable FailureReason = "Unavailable"
)

// BatchFailure names one rejected item and the reason.
type BatchFailure struct {
	ObligationID string
	Reason       FailureReason
}

// BatchResult reports per-item outcomes of a submit or approve batch.
// Succeeded items stay committed regardless of the failures.
type BatchResult struct {
	Succeeded []string
	Failed    []BatchFailure
}

// ValidationHook runs after a successful approval, outside the engine's own
// state. It backs the remediation-to-recurring-control conversion workflow.
type ValidationHook func(ctx context.Context, obligation domain.Obligation, key domain.QuarterKey) error

// ObligationService is the quarterly review lifecycle engine. It validates
// and applies assessment transitions against the obligation store and hands
// change hints to the dispatcher after each committed batch.
type ObligationService struct {
	obligations port.ObligationRepository
	dispatcher  *NotificationDispatcher
	hook        ValidationHook
	logger      *zap.Logger
	now         func() time.Time
}

// NewObligationService constructs an ObligationService.
func NewObligationService(obligations port.ObligationRepository, dispatcher *NotificationDispatcher, logger *zap.Logger) *ObligationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObligationService{
		obligations: obligations,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithValidationHook registers the post-approval callback.
func (s *ObligationService) WithValidationHook(hook ValidationHook) *ObligationService {
	s.hook = hook
	return s
}

// WithClock overrides the engine clock for deterministic testing.
func (s *ObligationService) WithClock(clock func() time.Time) *ObligationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// List returns the caller's tenant obligations with embedded update history.
func (s *ObligationService) List(ctx context.Context, actor domain.Actor) ([]domain.Obligation, error) {
	if actor.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	return s.obligations.ListByTenant(ctx, actor.TenantID)
}

// Get returns one obligation scoped to the caller's tenant.
func (s *ObligationService) Get(ctx context.Context, actor domain.Actor, obligationID string) (*domain.Obligation, error) {
	obligation, err := s.obligations.GetByID(ctx, obligationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("get obligation: %w", err)
	}
	// Cross-tenant ids are reported as absent, not forbidden.
	if obligation.TenantID != actor.TenantID {
		return nil, ErrObligationNotFound
	}
	return obligation, nil
}

// UpdateFields applies a CRUD patch. The engine consumes lifecycleState from
// the patched record; everything else is plain field storage.
func (s *ObligationService) UpdateFields(ctx context.Context, actor domain.Actor, obligationID string, patch domain.ObligationPatch) (*domain.Obligation, error) {
	if !actor.IsSuperUser {
		return nil, ErrPermissionDenied
	}
	if patch.LifecycleState != nil {
		switch *patch.LifecycleState {
		case domain.LifecycleActive, domain.LifecycleInactive:
		default:
			return nil, fmt.Errorf("%w: unknown lifecycle state %q", ErrValidation, *patch.LifecycleState)
		}
	}

	if _, err := s.Get(ctx, actor, obligationID); err != nil {
		return nil, err
	}

	updated, err := s.obligations.UpdateFields(ctx, obligationID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("update obligation fields: %w", err)
	}
	return updated, nil
}

// RecordComplianceStatus writes ad-hoc evidence for a quarter before it is
// submitted. Creating the entry when absent and editing it while
// Unsubmitted are the same operation; anything later is a state conflict,
// since silently mutating evidence would invalidate a pending or granted
// approval.
func (s *ObligationService) RecordComplianceStatus(ctx context.Context, actor domain.Actor, obligationID string, key domain.QuarterKey, status domain.ComplianceStatus, comments string, attachments []domain.Attachment) (*domain.Obligation, error) {
	if !actor.IsChampion {
		return nil, ErrPermissionDenied
	}
	if !key.Valid() {
		return nil, ErrInvalidQuarter
	}
	switch status {
	case domain.ComplianceCompliant, domain.ComplianceNotCompliant, domain.ComplianceUnset:
	default:
		return nil, fmt.Errorf("%w: unknown compliance status %q", ErrValidation, status)
	}

	obligation, err := s.Get(ctx, actor, obligationID)
	if err != nil {
		return nil, err
	}

	entry := domain.UpdateEntry{
		ID:               uuid.NewString(),
		ObligationID:     obligation.ID,
		Key:              key,
		ComplianceStatus: status,
		Comments:         strings.TrimSpace(comments),
		Attachments:      attachments,
	}

	if _, err := s.obligations.UpsertUnsubmittedEntry(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("record compliance status: %w", err)
	}

	return s.Get(ctx, actor, obligationID)
}

// Submit transitions the quarter entries of the given obligations from
// Unsubmitted to Submitted. Items are independent: each failure is reported
// per id and succeeded items are never rolled back.
func (s *ObligationService) Submit(ctx context.Context, actor domain.Actor, obligationIDs []string, key domain.QuarterKey) (BatchResult, error) {
	if !actor.IsChampion {
		return BatchResult{}, ErrPermissionDenied
	}

	result, err := s.runBatch(ctx, actor, obligationIDs, key, s.submitOne)
	if err != nil {
		return result, err
	}

	if len(result.Succeeded) > 0 && s.dispatcher != nil {
		s.dispatcher.ObligationSubmitted(ctx, domain.ObligationSubmittedEvent{
			TenantID:        actor.TenantID,
			Key:             key,
			SubmittedBy:     actor.ID,
			ObligationCount: len(result.Succeeded),
			SubmittedAt:     s.now(),
		})
	}

	return result, nil
}

// Approve transitions the quarter entries of the given obligations from
// Submitted to Approved under the same partial-failure contract as Submit.
func (s *ObligationService) Approve(ctx context.Context, actor domain.Actor, obligationIDs []string, key domain.QuarterKey) (BatchResult, error) {
	if !actor.IsSuperUser {
		return BatchResult{}, ErrPermissionDenied
	}

	result, err := s.runBatch(ctx, actor, obligationIDs, key, s.approveOne)
	if err != nil {
		return result, err
	}

	if len(result.Succeeded) > 0 && s.dispatcher != nil {
		s.dispatcher.ObligationValidated(ctx, domain.ObligationValidatedEvent{
			TenantID:      actor.TenantID,
			Key:           key,
			ApprovedBy:    actor.ID,
			ObligationIDs: append([]string(nil), result.Succeeded...),
			ApprovedAt:    s.now(),
		})
	}

	return result, nil
}

type batchItemFunc func(ctx context.Context, actor domain.Actor, obligationID string, key domain.QuarterKey) FailureReason

func (s *ObligationService) runBatch(ctx context.Context, actor domain.Actor, obligationIDs []string, key domain.QuarterKey, apply batchItemFunc) (BatchResult, error) {
	var result BatchResult

	if !key.Valid() {
		return result, ErrInvalidQuarter
	}
	if len(obligationIDs) == 0 {
		return result, fmt.Errorf("%w: obligation ids are required", ErrValidation)
	}

	seen := make(map[string]struct{}, len(obligationIDs))
	for _, id := range obligationIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		// An item skipped by a caller deadline is reported, never left
		// half-applied: each transition is a single atomic store write.
		if ctx.Err() != nil {
			result.Failed = append(result.Failed, BatchFailure{ObligationID: id, Reason: ReasonUnavailable})
			continue
		}

		if reason := apply(ctx, actor, id, key); reason != "" {
			result.Failed = append(result.Failed, BatchFailure{ObligationID: id, Reason: reason})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}

	if len(seen) == 0 {
		return result, fmt.Errorf("%w: obligation ids are required", ErrValidation)
	}

	return result, nil
}

func (s *ObligationService) submitOne(ctx context.Context, actor domain.Actor, obligationID string, key domain.QuarterKey) FailureReason {
	obligation, err := s.obligations.GetByID(ctx, obligationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("submit: load obligation failed",
				zap.String("obligation_id", obligationID),
				zap.Error(err),
			)
			return ReasonUnavailable
		}
		return ReasonNotFound
	}
	if obligation.TenantID != actor.TenantID {
		return ReasonNotFound
	}
	if !obligation.IsActive() {
		return ReasonInactive
	}

	entry, ok := obligation.EntryFor(key)
	if !ok {
		// No evidence recorded for this quarter. Evidence from a prior
		// quarter never qualifies for the current key.
		return ReasonNotEligible
	}
	if entry.AssessmentStatus != domain.AssessmentUnsubmitted {
		return ReasonNotEligible
	}
	if !entry.HasEvidence() {
		return ReasonNotEligible
	}

	if _, err := s.obligations.AdvanceEntry(ctx, obligationID, key, domain.AssessmentUnsubmitted, domain.AssessmentSubmitted); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			// A concurrent writer advanced the entry between validation and
			// write; only this item is rejected.
			return ReasonNotEligible
		case errors.Is(err, repository.ErrNotFound):
			return ReasonNotFound
		default:
			s.logger.Warn("submit: advance entry failed",
				zap.String("obligation_id", obligationID),
				zap.String("quarter", key.String()),
				zap.Error(err),
			)
			return ReasonUnavailable
		}
	}

	return ""
}

func (s *ObligationService) approveOne(ctx context.Context, actor domain.Actor, obligationID string, key domain.QuarterKey) FailureReason {
	obligation, err := s.obligations.GetByID(ctx, obligationID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("approve: load obligation failed",
				zap.String("obligation_id", obligationID),
				zap.Error(err),
			)
			return ReasonUnavailable
		}
		return ReasonNotFound
	}
	if obligation.TenantID != actor.TenantID {
		return ReasonNotFound
	}

	entry, ok := obligation.EntryFor(key)
	if !ok {
		return ReasonNotFound
	}
	if entry.AssessmentStatus != domain.AssessmentSubmitted {
		return ReasonNotEligible
	}

	if _, err := s.obligations.AdvanceEntry(ctx, obligationID, key, domain.AssessmentSubmitted, domain.AssessmentApproved); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return ReasonNotEligible
		case errors.Is(err, repository.ErrNotFound):
			return ReasonNotFound
		default:
			s.logger.Warn("approve: advance entry failed",
				zap.String("obligation_id", obligationID),
				zap.String("quarter", key.String()),
				zap.Error(err),
			)
			return ReasonUnavailable
		}
	}

	if s.hook != nil {
		if err := s.hook(ctx, *obligation, key); err != nil {
			// The approval is already committed; the secondary workflow owns
			// its own retries.
			s.logger.Warn("post-approval hook failed",
				zap.String("obligation_id", obligationID),
				zap.String("quarter", key.String()),
				zap.Error(err),
			)
		}
	}

	return ""
}
