package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greetday/greetday/internal/models"
)

// UserRepository is the scheduler's read path into the account system's
// local projection.
type UserRepository interface {
	// FindByID returns a single user, or models.ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.User, error)
	// FindEventCandidates returns every non-deleted user who could possibly
	// have an occurrence of any yearly message type today, for the daily
	// precomputer to check against each strategy. Filtering to "possibly"
	// rather than "definitely" keeps this a cheap scan; the precise
	// leap-day/timezone decision is made per-user by the tz package.
	FindEventCandidates(ctx context.Context) ([]*models.User, error)
}

// PostgresUserRepository implements UserRepository over a pgx pool.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, timezone,
		       birth_year, birth_month, birth_day,
		       anniversary_year, anniversary_month, anniversary_day,
		       deleted_at, created_at, updated_at
		FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresUserRepository) FindEventCandidates(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := withReadTimeout(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, timezone,
		       birth_year, birth_month, birth_day,
		       anniversary_year, anniversary_month, anniversary_day,
		       deleted_at, created_at, updated_at
		FROM users
		WHERE deleted_at IS NULL
		  AND (birth_month IS NOT NULL OR anniversary_month IS NOT NULL)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                                            models.User
		birthYear, birthDay, annivYear, annivDay     *int
		birthMonth, annivMonth                       *int
		deletedAt                                    *time.Time
	)
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Timezone,
		&birthYear, &birthMonth, &birthDay,
		&annivYear, &annivMonth, &annivDay,
		&deletedAt, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if birthMonth != nil && birthDay != nil {
		year := 0
		if birthYear != nil {
			year = *birthYear
		}
		u.BirthDate = &models.EventDate{Year: year, Month: time.Month(*birthMonth), Day: *birthDay}
	}
	if annivMonth != nil && annivDay != nil {
		year := 0
		if annivYear != nil {
			year = *annivYear
		}
		u.AnniversaryDate = &models.EventDate{Year: year, Month: time.Month(*annivMonth), Day: *annivDay}
	}
	u.DeletedAt = deletedAt
	return &u, nil
}
