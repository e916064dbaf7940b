package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists usage records. Inserts only: the ledger is append-only.
type Repository interface {
	Insert(ctx context.Context, r *Record) error
	UserStats(ctx context.Context, userID uuid.UUID, since time.Time) (*Stats, error)
	SystemStats(ctx context.Context, since time.Time) (*SystemStats, error)
	DailyBreakdown(ctx context.Context, userID uuid.UUID, days int) ([]DailyStat, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a Repository backed by PostgreSQL.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO usage_logs (user_id, model, endpoint, prompt_tokens, completion_tokens, total_tokens, cost, request_id, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		rec.UserID, rec.Model, rec.Endpoint,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost,
		rec.RequestID, rec.Success,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

func (r *postgresRepository) UserStats(ctx context.Context, userID uuid.UUID, since time.Time) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_logs
		WHERE user_id = $1 AND created_at >= $2`

	var s Stats
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(
		&s.TotalRequests, &s.PromptTokens, &s.CompletionTokens, &s.TotalTokens, &s.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("aggregating user usage: %w", err)
	}
	return &s, nil
}

func (r *postgresRepository) SystemStats(ctx context.Context, since time.Time) (*SystemStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost), 0),
		       COUNT(DISTINCT user_id)
		FROM usage_logs
		WHERE created_at >= $1`

	var s SystemStats
	err := r.pool.QueryRow(ctx, query, since).Scan(
		&s.TotalRequests, &s.PromptTokens, &s.CompletionTokens, &s.TotalTokens, &s.TotalCost, &s.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("aggregating system usage: %w", err)
	}
	return &s, nil
}

func (r *postgresRepository) DailyBreakdown(ctx context.Context, userID uuid.UUID, days int) ([]DailyStat, error) {
	query := `
		SELECT TO_CHAR(created_at::date, 'YYYY-MM-DD'),
		       COUNT(*),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_logs
		WHERE user_id = $1 AND created_at >= NOW() - ($2 || ' days')::interval
		GROUP BY created_at::date
		ORDER BY created_at::date DESC`

	rows, err := r.pool.Query(ctx, query, userID, days)
	if err != nil {
		return nil, fmt.Errorf("querying daily usage: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var d DailyStat
		if err := rows.Scan(&d.Date, &d.Requests, &d.TotalTokens, &d.TotalCost); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

func (r *postgresRepository) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_logs WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting usage records: %w", err)
	}

	query := `
		SELECT id, user_id, model, endpoint, prompt_tokens, completion_tokens, total_tokens, cost, request_id, success, created_at
		FROM usage_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying usage history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(&rec.ID, &rec.UserID, &rec.Model, &rec.Endpoint,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.Cost,
			&rec.RequestID, &rec.Success, &rec.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}
