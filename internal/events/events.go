package events

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds the gateway event trail.
const StreamEvents = "CODEXGATE_EVENTS"

// Subject constants.
const (
	SubjectRedemption = "codexgate.events.redemption"
	SubjectPlan       = "codexgate.events.plan"
	SubjectUsage      = "codexgate.events.usage"
	SubjectAdmission  = "codexgate.events.admission"
)

// RedemptionEvent is published when a code is successfully redeemed.
type RedemptionEvent struct {
	Code       string    `json:"code"`
	UserID     string    `json:"user_id"`
	PlanType   string    `json:"plan_type"`
	TokenLimit int64     `json:"token_limit"`
	Extended   bool      `json:"extended"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// PlanEvent is published on plan lifecycle changes.
type PlanEvent struct {
	UserID    string    `json:"user_id"`
	PlanType  string    `json:"plan_type"`
	Mode      string    `json:"mode"` // created, extended, replaced, expired
	Timestamp time.Time `json:"timestamp"`
}

// UsageEvent is published after a usage record is persisted.
type UsageEvent struct {
	UserID      string    `json:"user_id"`
	Model       string    `json:"model"`
	TotalTokens int64     `json:"total_tokens"`
	Cost        float64   `json:"cost"`
	Timestamp   time.Time `json:"timestamp"`
}

// AdmissionEvent is published when a request is rejected by the rate limiter.
type AdmissionEvent struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Reason    string    `json:"reason"` // requests, tokens
	Timestamp time.Time `json:"timestamp"`
}
