package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/repository"
)

func obligationRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "name", "description", "owner_id", "team_id", "risk_class", "lifecycle_state", "created_at", "updated_at",
	})
}

func entryRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "obligation_id", "year", "quarter", "assessment_status", "compliance_status", "comments", "attachments", "revision", "created_at", "updated_at",
	})
}

func TestObligationRepositoryGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	now := time.Now().UTC()
	owner := "user-owner"

	mock.ExpectQuery(`SELECT .* FROM grc\.obligations WHERE id = \$1`).
		WithArgs("ob-1").
		WillReturnRows(obligationRows().AddRow(
			"ob-1", "tenant-a", "Privacy impact review", "quarterly DPIA refresh", &owner, nil, "high", "active", now, now,
		))

	mock.ExpectQuery(`SELECT .* FROM grc\.update_entries WHERE obligation_id = \$1`).
		WithArgs("ob-1").
		WillReturnRows(entryRows().AddRow(
			"ue-1", "ob-1", 2024, 3, "submitted", "compliant", "evidence attached",
			[]byte(`[{"name":"audit.pdf","storage_path":"tenant-a/audit.pdf"}]`), int64(2), now, now,
		))

	obligation, err := repo.GetByID(context.Background(), "ob-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}

	if obligation.TenantID != "tenant-a" || obligation.LifecycleState != domain.LifecycleActive {
		t.Fatalf("unexpected obligation: %+v", obligation)
	}
	if obligation.OwnerID == nil || *obligation.OwnerID != owner {
		t.Fatalf("expected owner pointer populated")
	}
	if len(obligation.Updates) != 1 {
		t.Fatalf("expected one update entry, got %d", len(obligation.Updates))
	}

	entry := obligation.Updates[0]
	if entry.Key != (domain.QuarterKey{Year: 2024, Quarter: domain.Q3}) {
		t.Fatalf("unexpected entry key %s", entry.Key)
	}
	if entry.AssessmentStatus != domain.AssessmentSubmitted || entry.ComplianceStatus != domain.ComplianceCompliant {
		t.Fatalf("unexpected entry statuses: %+v", entry)
	}
	if len(entry.Attachments) != 1 || entry.Attachments[0].Name != "audit.pdf" {
		t.Fatalf("expected decoded attachments, got %+v", entry.Attachments)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestObligationRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM grc\.obligations WHERE id = \$1`).
		WithArgs("ob-missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "ob-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}
}

func TestObligationRepositoryListByTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM grc\.obligations WHERE tenant_id = \$1 ORDER BY created_at`).
		WithArgs("tenant-a").
		WillReturnRows(obligationRows().
			AddRow("ob-1", "tenant-a", "Obligation one", "", nil, nil, "low", "active", now, now).
			AddRow("ob-2", "tenant-a", "Obligation two", "", nil, nil, "high", "inactive", now, now))

	mock.ExpectQuery(`SELECT .* FROM grc\.update_entries WHERE obligation_id IN \(\$1,\$2\)`).
		WithArgs("ob-1", "ob-2").
		WillReturnRows(entryRows().
			AddRow("ue-1", "ob-2", 2024, 2, "approved", "not_compliant", "", []byte(`[]`), int64(1), now, now))

	obligations, err := repo.ListByTenant(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("ListByTenant returned error: %v", err)
	}

	if len(obligations) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(obligations))
	}
	if len(obligations[0].Updates) != 0 {
		t.Fatalf("ob-1 should have no entries")
	}
	if len(obligations[1].Updates) != 1 || obligations[1].Updates[0].ComplianceStatus != domain.ComplianceNotCompliant {
		t.Fatalf("entry not stitched to ob-2: %+v", obligations[1].Updates)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdvanceEntrySuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	now := time.Now().UTC()
	key := domain.QuarterKey{Year: 2024, Quarter: domain.Q3}

	mock.ExpectQuery(`UPDATE grc\.update_entries SET`).
		WithArgs("submitted", pgxmock.AnyArg(), "ob-1", 2024, 3, "unsubmitted").
		WillReturnRows(entryRows().AddRow(
			"ue-1", "ob-1", 2024, 3, "submitted", "compliant", "evidence", []byte(`[]`), int64(2), now, now,
		))

	entry, err := repo.AdvanceEntry(context.Background(), "ob-1", key, domain.AssessmentUnsubmitted, domain.AssessmentSubmitted)
	if err != nil {
		t.Fatalf("AdvanceEntry returned error: %v", err)
	}
	if entry.AssessmentStatus != domain.AssessmentSubmitted || entry.Revision != 2 {
		t.Fatalf("unexpected entry after advance: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdvanceEntryConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	key := domain.QuarterKey{Year: 2024, Quarter: domain.Q3}

	// The compare-and-set matches no row, but the entry exists in another state.
	mock.ExpectQuery(`UPDATE grc\.update_entries SET`).
		WithArgs("submitted", pgxmock.AnyArg(), "ob-1", 2024, 3, "unsubmitted").
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`SELECT true FROM grc\.update_entries`).
		WithArgs("ob-1", 3, 2024).
		WillReturnRows(pgxmock.NewRows([]string{"bool"}).AddRow(true))

	if _, err := repo.AdvanceEntry(context.Background(), "ob-1", key, domain.AssessmentUnsubmitted, domain.AssessmentSubmitted); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected repository.ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAdvanceEntryNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	key := domain.QuarterKey{Year: 2024, Quarter: domain.Q3}

	mock.ExpectQuery(`UPDATE grc\.update_entries SET`).
		WithArgs("approved", pgxmock.AnyArg(), "ob-1", 2024, 3, "submitted").
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`SELECT true FROM grc\.update_entries`).
		WithArgs("ob-1", 3, 2024).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.AdvanceEntry(context.Background(), "ob-1", key, domain.AssessmentSubmitted, domain.AssessmentApproved); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}
}

func TestUpsertUnsubmittedEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	now := time.Now().UTC()
	entry := domain.UpdateEntry{
		ID:               "ue-1",
		ObligationID:     "ob-1",
		Key:              domain.QuarterKey{Year: 2024, Quarter: domain.Q3},
		ComplianceStatus: domain.ComplianceCompliant,
		Comments:         "evidence",
	}

	mock.ExpectQuery(`INSERT INTO grc\.update_entries`).
		WithArgs("ue-1", "ob-1", 2024, 3, "compliant", "evidence", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(entryRows().AddRow(
			"ue-1", "ob-1", 2024, 3, "unsubmitted", "compliant", "evidence", []byte(`[]`), int64(1), now, now,
		))

	stored, err := repo.UpsertUnsubmittedEntry(context.Background(), entry)
	if err != nil {
		t.Fatalf("UpsertUnsubmittedEntry returned error: %v", err)
	}
	if stored.AssessmentStatus != domain.AssessmentUnsubmitted || stored.Revision != 1 {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertUnsubmittedEntryConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	entry := domain.UpdateEntry{
		ID:               "ue-1",
		ObligationID:     "ob-1",
		Key:              domain.QuarterKey{Year: 2024, Quarter: domain.Q3},
		ComplianceStatus: domain.ComplianceCompliant,
	}

	// Guarded upsert returns no row once the entry left Unsubmitted.
	mock.ExpectQuery(`INSERT INTO grc\.update_entries`).
		WithArgs("ue-1", "ob-1", 2024, 3, "compliant", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.UpsertUnsubmittedEntry(context.Background(), entry); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected repository.ErrConflict, got %v", err)
	}
}

func TestUpdateFieldsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewObligationRepository(mock)
	name := "renamed"

	mock.ExpectExec(`UPDATE grc\.obligations SET`).
		WithArgs(pgxmock.AnyArg(), name, "ob-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if _, err := repo.UpdateFields(context.Background(), "ob-missing", domain.ObligationPatch{Name: &name}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}
}
