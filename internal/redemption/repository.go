package redemption

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists redemption codes.
type Repository interface {
	Create(ctx context.Context, c *Code) error
	CreateBatch(ctx context.Context, codes []*Code) error
	FindByCode(ctx context.Context, code string) (*Code, error)
	// Claim marks the code used if and only if it is still unused, in a
	// single conditional update. It returns the claimed row, or nil when
	// the code was already used or does not exist.
	Claim(ctx context.Context, code string, userID uuid.UUID) (*Code, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Code, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Repository backed by PostgreSQL.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const codeColumns = `id, code, plan_type, token_limit, is_used, used_by, used_at, expires_at, created_by, description, created_at`

func scanCode(row pgx.Row) (*Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.PlanType, &c.TokenLimit, &c.IsUsed,
		&c.UsedBy, &c.UsedAt, &c.ExpiresAt, &c.CreatedBy, &c.Description, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepository) Create(ctx context.Context, c *Code) error {
	query := `
		INSERT INTO redemption_codes (code, plan_type, token_limit, expires_at, created_by, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		c.Code, c.PlanType, c.TokenLimit, c.ExpiresAt, c.CreatedBy, c.Description,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating redemption code: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateBatch(ctx context.Context, codes []*Code) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO redemption_codes (code, plan_type, token_limit, expires_at, created_by, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	for _, c := range codes {
		err := tx.QueryRow(ctx, query,
			c.Code, c.PlanType, c.TokenLimit, c.ExpiresAt, c.CreatedBy, c.Description,
		).Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return fmt.Errorf("creating redemption code %q: %w", c.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch insert: %w", err)
	}
	return nil
}

func (r *postgresRepository) FindByCode(ctx context.Context, code string) (*Code, error) {
	query := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE code = $1`

	c, err := scanCode(r.pool.QueryRow(ctx, query, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding redemption code: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) Claim(ctx context.Context, code string, userID uuid.UUID) (*Code, error) {
	query := `
		UPDATE redemption_codes
		SET is_used = TRUE, used_by = $2, used_at = NOW()
		WHERE code = $1 AND is_used = FALSE
		RETURNING ` + codeColumns

	c, err := scanCode(r.pool.QueryRow(ctx, query, code, userID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming redemption code: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM redemption_codes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting redemption code: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]*Code, int64, error) {
	var conds []string
	var args []any

	switch filter.Status {
	case "used":
		conds = append(conds, "is_used = TRUE")
	case "unused":
		conds = append(conds, "is_used = FALSE")
	}
	if filter.PlanType != "" {
		args = append(args, filter.PlanType)
		conds = append(conds, fmt.Sprintf("plan_type = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(code ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM redemption_codes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting redemption codes: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT `+codeColumns+` FROM redemption_codes%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing redemption codes: %w", err)
	}
	defer rows.Close()

	var codes []*Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning redemption code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, total, rows.Err()
}
