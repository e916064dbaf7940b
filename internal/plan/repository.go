package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, p *UserPlan) error
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*UserPlan, error)
	Extend(ctx context.Context, id uuid.UUID, addTokens int64, newExpiresAt time.Time) (*UserPlan, error)
	IncrementTokensUsed(ctx context.Context, id uuid.UUID, tokens int64) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateExpired(ctx context.Context) (int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const planColumns = `id, user_id, plan_type, token_limit, tokens_used, starts_at, expires_at, is_active, created_at`

func scanPlan(row pgx.Row) (*UserPlan, error) {
	p := &UserPlan{}
	err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.TokenLimit, &p.TokensUsed,
		&p.StartsAt, &p.ExpiresAt, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresRepository) Create(ctx context.Context, p *UserPlan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_plans (id, user_id, plan_type, token_limit, tokens_used, starts_at, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.Type, p.TokenLimit, p.TokensUsed, p.StartsAt, p.ExpiresAt, p.IsActive)
	if err != nil {
		return fmt.Errorf("inserting user plan: %w", err)
	}
	return nil
}

// FindActiveByUser filters on expires_at as well as is_active, so a plan the
// sweep has not yet flipped is still treated as expired.
func (r *postgresRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*UserPlan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM user_plans
		 WHERE user_id = $1 AND is_active = TRUE AND expires_at > NOW()
		 ORDER BY created_at DESC LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying active plan: %w", err)
	}
	return p, nil
}

func (r *postgresRepository) Extend(ctx context.Context, id uuid.UUID, addTokens int64, newExpiresAt time.Time) (*UserPlan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx,
		`UPDATE user_plans
		 SET token_limit = token_limit + $2, expires_at = $3
		 WHERE id = $1 AND is_active = TRUE
		 RETURNING `+planColumns, id, addTokens, newExpiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("extending plan: %w", err)
	}
	return p, nil
}

// IncrementTokensUsed is a SQL-side increment: concurrent debits never
// overwrite each other with stale reads.
func (r *postgresRepository) IncrementTokensUsed(ctx context.Context, id uuid.UUID, tokens int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_plans SET tokens_used = tokens_used + $2 WHERE id = $1`, id, tokens)
	if err != nil {
		return fmt.Errorf("incrementing tokens used: %w", err)
	}
	return nil
}

func (r *postgresRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_plans SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating plan: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_plans SET is_active = FALSE WHERE is_active = TRUE AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired plans: %w", err)
	}
	return tag.RowsAffected(), nil
}
