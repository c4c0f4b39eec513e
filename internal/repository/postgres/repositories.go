package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Obligations *ObligationRepository
	Calendar    *CalendarRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, fiscalYearStart time.Month) *Repositories {
	return &Repositories{
		Obligations: NewObligationRepository(pool),
		Calendar:    NewCalendarRepository(pool, fiscalYearStart),
	}
}
