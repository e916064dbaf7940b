package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Role budgets: a zero or negative budget would reject everything.
	for _, rl := range []struct {
		name  string
		limit RoleLimit
	}{
		{"user", c.Limits.User},
		{"admin", c.Limits.Admin},
		{"superadmin", c.Limits.SuperAdmin},
	} {
		if rl.limit.MaxRequests < 1 {
			errs = append(errs, fmt.Sprintf("LIMITS_%s_REQUESTS must be positive", strings.ToUpper(rl.name)))
		}
		if rl.limit.MaxTokens < 1 {
			errs = append(errs, fmt.Sprintf("LIMITS_%s_TOKENS must be positive", strings.ToUpper(rl.name)))
		}
	}

	if c.Sweep.CacheInterval <= 0 {
		errs = append(errs, "SWEEP_CACHE_INTERVAL must be positive")
	}
	if c.Sweep.PlanInterval <= 0 {
		errs = append(errs, "SWEEP_PLAN_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
