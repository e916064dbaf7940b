package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is one append-only usage ledger entry. Records are never updated
// or deleted once written.
type Record struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Model            string    `json:"model"`
	Endpoint         string    `json:"endpoint"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	RequestID        string    `json:"request_id,omitempty"`
	Success          bool      `json:"success"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecordRequest is the reporting payload from the proxy data path. Failed
// upstream calls are recorded too (success=false): tokens were still spent.
type RecordRequest struct {
	Model            string `json:"model" validate:"required,max=128"`
	Endpoint         string `json:"endpoint" validate:"max=256"`
	PromptTokens     int64  `json:"prompt_tokens" validate:"gte=0"`
	CompletionTokens int64  `json:"completion_tokens" validate:"gte=0"`
	RequestID        string `json:"request_id" validate:"max=128"`
	Success          bool   `json:"success"`
}

// Stats aggregates usage over a period.
type Stats struct {
	TotalRequests    int64   `json:"total_requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost"`
}

// SystemStats extends Stats with the distinct caller count.
type SystemStats struct {
	Stats
	UniqueUsers int64 `json:"unique_users"`
}

// DailyStat is one day's aggregate in a breakdown.
type DailyStat struct {
	Date        string  `json:"date"`
	Requests    int64   `json:"requests"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}
