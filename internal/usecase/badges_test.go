package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/repository"
)

func TestBadgeCountsFixedScenario(t *testing.T) {
	obligations := []domain.Obligation{
		obligationWithEntry("ob-unsubmitted", "tenant-a", domain.LifecycleActive, entryAt("ob-unsubmitted", q3, domain.AssessmentUnsubmitted)),
		obligationWithEntry("ob-no-entry", "tenant-a", domain.LifecycleActive),
		obligationWithEntry("ob-submitted", "tenant-a", domain.LifecycleActive, entryAt("ob-submitted", q3, domain.AssessmentSubmitted)),
		obligationWithEntry("ob-approved", "tenant-a", domain.LifecycleActive, entryAt("ob-approved", q3, domain.AssessmentApproved)),
		obligationWithEntry("ob-inactive", "tenant-a", domain.LifecycleInactive, entryAt("ob-inactive", q3, domain.AssessmentUnsubmitted)),
		obligationWithEntry("ob-old-quarter", "tenant-a", domain.LifecycleActive, entryAt("ob-old-quarter", q2, domain.AssessmentSubmitted)),
	}

	counts := CountBadges(obligations, q3)

	// Missing entry and unsubmitted entry both await submission; the Q2
	// submission does not bleed into Q3. Inactive obligations never count.
	if counts.PendingSubmission != 3 {
		t.Fatalf("expected 3 pending submissions, got %d", counts.PendingSubmission)
	}
	if counts.PendingApproval != 1 {
		t.Fatalf("expected 1 pending approval, got %d", counts.PendingApproval)
	}
	if !counts.HasPeriod || counts.Key != q3 {
		t.Fatalf("unexpected counts metadata: %+v", counts)
	}
}

func TestBadgeServiceCounts(t *testing.T) {
	repo := newObligationRepoMock(
		obligationWithEntry("ob-1", "tenant-a", domain.LifecycleActive, entryAt("ob-1", q3, domain.AssessmentUnsubmitted)),
		obligationWithEntry("ob-2", "tenant-a", domain.LifecycleActive, entryAt("ob-2", q3, domain.AssessmentSubmitted)),
		obligationWithEntry("ob-other-tenant", "tenant-b", domain.LifecycleActive, entryAt("ob-other-tenant", q3, domain.AssessmentSubmitted)),
	)
	svc := NewBadgeService(repo, &calendarMock{key: q3})

	counts, err := svc.Counts(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Counts returned error: %v", err)
	}
	if counts.PendingSubmission != 1 || counts.PendingApproval != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestBadgeServiceWithoutCurrentPeriod(t *testing.T) {
	repo := newObligationRepoMock(
		obligationWithEntry("ob-1", "tenant-a", domain.LifecycleActive, entryAt("ob-1", q3, domain.AssessmentUnsubmitted)),
	)
	svc := NewBadgeService(repo, &calendarMock{err: repository.ErrNotFound})

	counts, err := svc.Counts(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Counts returned error: %v", err)
	}
	if counts.HasPeriod || counts.PendingSubmission != 0 || counts.PendingApproval != 0 {
		t.Fatalf("expected zero counts without a review period, got %+v", counts)
	}
}

func TestBadgeServiceCalendarFailure(t *testing.T) {
	svc := NewBadgeService(newObligationRepoMock(), &calendarMock{err: errors.New("calendar store down")})

	if _, err := svc.Counts(context.Background(), "tenant-a"); err == nil {
		t.Fatalf("expected error when calendar lookup fails")
	}
}

func TestBadgeServiceRequiresTenant(t *testing.T) {
	svc := NewBadgeService(newObligationRepoMock(), &calendarMock{key: q3})

	if _, err := svc.Counts(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// CountBadges must agree with an independent filter of the same set,
// whatever the obligation mix looks like.
func TestCountBadgesMatchesRefilter(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	statuses := []domain.AssessmentStatus{
		domain.AssessmentUnsubmitted,
		domain.AssessmentSubmitted,
		domain.AssessmentApproved,
	}

	for run := 0; run < 50; run++ {
		size := rng.Intn(40)
		obligations := make([]domain.Obligation, 0, size)
		for i := 0; i < size; i++ {
			state := domain.LifecycleActive
			if rng.Intn(4) == 0 {
				state = domain.LifecycleInactive
			}

			var entries []domain.UpdateEntry
			id := fmt.Sprintf("ob-%d-%d", run, i)
			if rng.Intn(5) != 0 {
				key := q3
				if rng.Intn(4) == 0 {
					key = q2
				}
				entries = append(entries, entryAt(id, key, statuses[rng.Intn(len(statuses))]))
			}
			obligations = append(obligations, obligationWithEntry(id, "tenant-a", state, entries...))
		}

		counts := CountBadges(obligations, q3)

		wantSubmission, wantApproval := 0, 0
		for _, o := range obligations {
			if !o.IsActive() {
				continue
			}
			entry, ok := o.EntryFor(q3)
			switch {
			case !ok || entry.AssessmentStatus == domain.AssessmentUnsubmitted:
				wantSubmission++
			case entry.AssessmentStatus == domain.AssessmentSubmitted:
				wantApproval++
			}
		}

		if counts.PendingSubmission != wantSubmission || counts.PendingApproval != wantApproval {
			t.Fatalf("run %d: counts diverged from refilter: got %+v, want %d/%d",
				run, counts, wantSubmission, wantApproval)
		}
	}
}
