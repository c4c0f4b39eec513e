package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/grc-obligations/internal/core/domain"
	"github.com/arklim/grc-obligations/internal/core/port"
)

// CalendarRepository resolves the current review period from the tenant's
// configured period boundaries. When a tenant has no configured periods the
// repository falls back to fiscal quarters derived from the configured
// year-start month.
type CalendarRepository struct {
	exec           pgExecutor
	builder        squirrel.StatementBuilderType
	yearStartMonth time.Month
}

// NewCalendarRepository constructs a CalendarRepository. yearStartMonth
// anchors the fiscal fallback; zero means January.
func NewCalendarRepository(exec pgExecutor, yearStartMonth time.Month) *CalendarRepository {
	if yearStartMonth < time.January || yearStartMonth > time.December {
		yearStartMonth = time.January
	}
	return &CalendarRepository{
		exec:           exec,
		builder:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		yearStartMonth: yearStartMonth,
	}
}

// CurrentQuarter returns the quarter key whose configured period contains today.
func (r *CalendarRepository) CurrentQuarter(ctx context.Context, tenantID string, today time.Time) (domain.QuarterKey, error) {
	date := today.UTC().Truncate(24 * time.Hour)

	sql, args, err := r.builder.
		Select("year", "quarter").
		From("grc.review_periods").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.LtOrEq{"starts_on": date}).
		Where(squirrel.GtOrEq{"ends_on": date}).
		ToSql()
	if err != nil {
		return domain.QuarterKey{}, fmt.Errorf("build select review period sql: %w", err)
	}

	var key domain.QuarterKey
	var quarter int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&key.Year, &quarter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.fiscalQuarter(date), nil
		}
		return domain.QuarterKey{}, fmt.Errorf("select review period: %w", err)
	}

	key.Quarter = domain.Quarter(quarter)
	if !key.Valid() {
		return domain.QuarterKey{}, fmt.Errorf("stored review period %d/%d is invalid", key.Year, quarter)
	}

	return key, nil
}

func (r *CalendarRepository) fiscalQuarter(date time.Time) domain.QuarterKey {
	monthsIntoYear := int(date.Month()) - int(r.yearStartMonth)
	year := date.Year()
	if monthsIntoYear < 0 {
		monthsIntoYear += 12
		year--
	}

	return domain.QuarterKey{
		Year:    year,
		Quarter: domain.Quarter(monthsIntoYear/3 + 1),
	}
}

var _ port.QuarterCalendar = (*CalendarRepository)(nil)
