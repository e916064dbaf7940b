package plan

import (
	"time"

	"github.com/google/uuid"
)

// Type is the plan duration class.
type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeMonthly:
		return true
	}
	return false
}

// Extend pushes from forward by one plan period. Monthly follows the
// calendar month rather than a fixed 30 days.
func (t Type) Extend(from time.Time) time.Time {
	switch t {
	case TypeWeekly:
		return from.AddDate(0, 0, 7)
	case TypeMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}

// UserPlan matches the user_plans table schema. A user may hold many
// historical plans but at most one active one.
type UserPlan struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Type       Type      `json:"plan_type"`
	TokenLimit int64     `json:"token_limit"`
	TokensUsed int64     `json:"tokens_used"`
	StartsAt   time.Time `json:"starts_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// TokensRemaining never reports negative: tokens_used may overshoot the
// limit because debits are advisory.
func (p *UserPlan) TokensRemaining() int64 {
	if r := p.TokenLimit - p.TokensUsed; r > 0 {
		return r
	}
	return 0
}

// Status is the API shape for a user's current plan. Zero values with a
// null type mean no active plan.
type Status struct {
	Type            *Type      `json:"plan_type"`
	TokenLimit      int64      `json:"token_limit"`
	TokensUsed      int64      `json:"tokens_used"`
	TokensRemaining int64      `json:"tokens_remaining"`
	ExpiresAt       *time.Time `json:"expires_at"`
}
