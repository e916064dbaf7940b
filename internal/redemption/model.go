package redemption

import (
	"time"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/plan"
)

// Code is a single-use voucher that grants a plan when redeemed.
type Code struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	PlanType    plan.Type  `json:"plan_type"`
	TokenLimit  int64      `json:"token_limit"`
	IsUsed      bool       `json:"is_used"`
	UsedBy      *uuid.UUID `json:"used_by,omitempty"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether the code has an expiry in the past.
func (c *Code) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CreateRequest creates one code, optionally with a caller-chosen value.
type CreateRequest struct {
	Code        string    `json:"code,omitempty" validate:"omitempty,min=4,max=64"`
	PlanType    plan.Type `json:"plan_type" validate:"required,oneof=daily weekly monthly"`
	TokenLimit  int64     `json:"token_limit" validate:"required,gt=0"`
	ExpiresAt   *string   `json:"expires_at,omitempty"`
	Description string    `json:"description,omitempty" validate:"max=500"`
}

// BatchRequest creates up to 100 random codes in one call.
type BatchRequest struct {
	Count       int       `json:"count" validate:"required,gte=1,lte=100"`
	Prefix      string    `json:"prefix,omitempty" validate:"omitempty,max=16"`
	PlanType    plan.Type `json:"plan_type" validate:"required,oneof=daily weekly monthly"`
	TokenLimit  int64     `json:"token_limit" validate:"required,gt=0"`
	ExpiresAt   *string   `json:"expires_at,omitempty"`
	Description string    `json:"description,omitempty" validate:"max=500"`
}

// RedeemRequest is the user-facing redemption payload.
type RedeemRequest struct {
	Code string `json:"code" validate:"required,min=4,max=64"`
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Status   string // "", "used", "unused"
	PlanType plan.Type
	Search   string
	Limit    int
	Offset   int
}
