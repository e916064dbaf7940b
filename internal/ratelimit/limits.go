package ratelimit

import (
	"time"

	"github.com/codexgate/codexgate/internal/auth"
	"github.com/codexgate/codexgate/internal/config"
)

// tokenWindow is the long-window length. The request window varies per role;
// the token budget always spans 24 hours.
const tokenWindow = 24 * time.Hour

// Limits holds the per-role admission budgets.
type Limits struct {
	cfg config.LimitsConfig
}

func NewLimits(cfg config.LimitsConfig) Limits {
	return Limits{cfg: cfg}
}

// ForRole returns the budget for role. Unknown roles get the user tier.
func (l Limits) ForRole(role auth.Role) config.RoleLimit {
	switch role {
	case auth.RoleAdmin:
		return l.cfg.Admin
	case auth.RoleSuperAdmin:
		return l.cfg.SuperAdmin
	default:
		return l.cfg.User
	}
}
