package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ObligationRepository implements port.ObligationRepository backed by PostgreSQL.
type ObligationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewObligationRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewObligationRepository(exec pgExecutor) *ObligationRepository {
	return &ObligationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var obligationColumns = []string{
	"id",
	"tenant_id",
	"name",
	"description",
	"owner_id",
	"team_id",
	"risk_class",
	"lifecycle_state",
	"created_at",
	"updated_at",
}

var entryColumns = []string{
	"id",
	"obligation_id",
	"year",
	"quarter",
	"assessment_status",
	"compliance_status",
	"comments",
	"attachments",
	"revision",
	"created_at",
	"updated_at",
}

// ListByTenant returns all obligations for a tenant with their full update history.
func (r *ObligationRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Obligation, error) {
	sql, args, err := r.builder.
		Select(obligationColumns...).
		From("grc.obligations").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select obligations sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select obligations: %w", err)
	}
	defer rows.Close()

	obligations := make([]domain.Obligation, 0)
	index := make(map[string]int)
	for rows.Next() {
		obligation, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		index[obligation.ID] = len(obligations)
		obligations = append(obligations, obligation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligations: %w", err)
	}

	if len(obligations) == 0 {
		return obligations, nil
	}

	ids := make([]string, 0, len(obligations))
	for _, o := range obligations {
		ids = append(ids, o.ID)
	}

	entrySQL, entryArgs, err := r.builder.
		Select(entryColumns...).
		From("grc.update_entries").
		Where(squirrel.Eq{"obligation_id": ids}).
		OrderBy("year", "quarter").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select update entries sql: %w", err)
	}

	entryRows, err := r.exec.Query(ctx, entrySQL, entryArgs...)
	if err != nil {
		return nil, fmt.Errorf("select update entries: %w", err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		entry, err := scanEntry(entryRows)
		if err != nil {
			return nil, err
		}
		if pos, ok := index[entry.ObligationID]; ok {
			obligations[pos].Updates = append(obligations[pos].Updates, entry)
		}
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate update entries: %w", err)
	}

	return obligations, nil
}

// GetByID returns one obligation with its update history.
func (r *ObligationRepository) GetByID(ctx context.Context, id string) (*domain.Obligation, error) {
	sql, args, err := r.builder.
		Select(obligationColumns...).
		From("grc.obligations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select obligation sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)
	obligation, err := scanObligationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	entrySQL, entryArgs, err := r.builder.
		Select(entryColumns...).
		From("grc.update_entries").
		Where(squirrel.Eq{"obligation_id": id}).
		OrderBy("year", "quarter").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select update entries sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, entrySQL, entryArgs...)
	if err != nil {
		return nil, fmt.Errorf("select update entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		obligation.Updates = append(obligation.Updates, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate update entries: %w", err)
	}

	return &obligation, nil
}

// UpdateFields applies a CRUD patch to the obligation record.
func (r *ObligationRepository) UpdateFields(ctx context.Context, id string, patch domain.ObligationPatch) (*domain.Obligation, error) {
	update := r.builder.
		Update("grc.obligations").
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id})

	changed := false
	if patch.Name != nil {
		update = update.Set("name", *patch.Name)
		changed = true
	}
	if patch.Description != nil {
		update = update.Set("description", *patch.Description)
		changed = true
	}
	if patch.OwnerID != nil {
		update = update.Set("owner_id", *patch.OwnerID)
		changed = true
	}
	if patch.TeamID != nil {
		update = update.Set("team_id", *patch.TeamID)
		changed = true
	}
	if patch.RiskClass != nil {
		update = update.Set("risk_class", *patch.RiskClass)
		changed = true
	}
	if patch.LifecycleState != nil {
		update = update.Set("lifecycle_state", string(*patch.LifecycleState))
		changed = true
	}

	if changed {
		sql, args, err := update.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build update obligation sql: %w", err)
		}

		tag, err := r.exec.Exec(ctx, sql, args...)
		if err != nil {
			return nil, fmt.Errorf("update obligation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, repository.ErrNotFound
		}
	}

	return r.GetByID(ctx, id)
}

// UpsertUnsubmittedEntry creates or overwrites an entry for its quarter key
// while the entry is still editable. The conditional ON CONFLICT update
// keeps the (obligation, year, quarter) key unique and refuses to mutate
// evidence after submission.
func (r *ObligationRepository) UpsertUnsubmittedEntry(ctx context.Context, entry domain.UpdateEntry) (*domain.UpdateEntry, error) {
	attachments, err := marshalAttachments(entry.Attachments)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	const sql = `
		INSERT INTO grc.update_entries
			(id, obligation_id, year, quarter, assessment_status, compliance_status, comments, attachments, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'unsubmitted', $5, $6, $7, 1, $8, $8)
		ON CONFLICT (obligation_id, year, quarter) DO UPDATE SET
			compliance_status = EXCLUDED.compliance_status,
			comments          = EXCLUDED.comments,
			attachments       = EXCLUDED.attachments,
			revision          = grc.update_entries.revision + 1,
			updated_at        = EXCLUDED.updated_at
		WHERE grc.update_entries.assessment_status = 'unsubmitted'
		RETURNING id, obligation_id, year, quarter, assessment_status, compliance_status, comments, attachments, revision, created_at, updated_at`

	row := r.exec.QueryRow(ctx, sql,
		entry.ID,
		entry.ObligationID,
		entry.Key.Year,
		int(entry.Key.Quarter),
		string(entry.ComplianceStatus),
		entry.Comments,
		attachments,
		now,
	)

	stored, err := scanEntryRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict target exists but the guard refused the update: the
			// entry already left Unsubmitted.
			return nil, repository.ErrConflict
		}
		return nil, err
	}

	return &stored, nil
}

// AdvanceEntry transitions one entry between assessment stages with a
// compare-and-set on the current status. Zero affected rows means either
// the entry is missing (ErrNotFound) or a concurrent writer got there
// first (ErrConflict).
func (r *ObligationRepository) AdvanceEntry(ctx context.Context, obligationID string, key domain.QuarterKey, from, to domain.AssessmentStatus) (*domain.UpdateEntry, error) {
	const sql = `
		UPDATE grc.update_entries SET
			assessment_status = $1,
			revision          = revision + 1,
			updated_at        = $2
		WHERE obligation_id = $3 AND year = $4 AND quarter = $5 AND assessment_status = $6
		RETURNING id, obligation_id, year, quarter, assessment_status, compliance_status, comments, attachments, revision, created_at, updated_at`

	row := r.exec.QueryRow(ctx, sql,
		string(to),
		time.Now().UTC(),
		obligationID,
		key.Year,
		int(key.Quarter),
		string(from),
	)

	entry, err := scanEntryRow(row)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Distinguish "no entry for this quarter" from "entry in another state".
	var exists bool
	checkSQL, checkArgs, buildErr := r.builder.
		Select("true").
		From("grc.update_entries").
		Where(squirrel.Eq{"obligation_id": obligationID, "year": key.Year, "quarter": int(key.Quarter)}).
		ToSql()
	if buildErr != nil {
		return nil, fmt.Errorf("build check entry sql: %w", buildErr)
	}
	if err := r.exec.QueryRow(ctx, checkSQL, checkArgs...).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("check update entry: %w", err)
	}

	return nil, repository.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(rows pgx.Rows) (domain.Obligation, error) {
	return scanObligationRow(rows)
}

func scanObligationRow(row rowScanner) (domain.Obligation, error) {
	var (
		o     domain.Obligation
		state string
	)
	if err := row.Scan(
		&o.ID,
		&o.TenantID,
		&o.Name,
		&o.Description,
		&o.OwnerID,
		&o.TeamID,
		&o.RiskClass,
		&state,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("scan obligation: %w", err)
	}
	o.LifecycleState = domain.LifecycleState(state)
	return o, nil
}

func scanEntry(rows pgx.Rows) (domain.UpdateEntry, error) {
	return scanEntryRow(rows)
}

func scanEntryRow(row rowScanner) (domain.UpdateEntry, error) {
	var (
		e           domain.UpdateEntry
		quarter     int
		assessment  string
		compliance  string
		attachments []byte
	)
	if err := row.Scan(
		&e.ID,
		&e.ObligationID,
		&e.Key.Year,
		&quarter,
		&assessment,
		&compliance,
		&e.Comments,
		&attachments,
		&e.Revision,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan update entry: %w", err)
	}

	e.Key.Quarter = domain.Quarter(quarter)
	e.AssessmentStatus = domain.AssessmentStatus(assessment)
	e.ComplianceStatus = domain.ComplianceStatus(compliance)

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &e.Attachments); err != nil {
			return e, fmt.Errorf("decode attachments: %w", err)
		}
	}

	return e, nil
}

func marshalAttachments(attachments []domain.Attachment) ([]byte, error) {
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	bytes, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return bytes, nil
}

var _ port.ObligationRepository = (*ObligationRepository)(nil)
