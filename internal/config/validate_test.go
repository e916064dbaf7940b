package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.DB.Port = 5432
	cfg.DB.Password = "secret"
	cfg.Redis.Port = 6379
	cfg.JWT.AccessSecret = strings.Repeat("s", 32)
	cfg.Limits = LimitsConfig{
		User:       RoleLimit{MaxRequests: 60, MaxTokens: 10000},
		Admin:      RoleLimit{MaxRequests: 120, MaxTokens: 50000},
		SuperAdmin: RoleLimit{MaxRequests: 300, MaxTokens: 200000},
	}
	cfg.Sweep.CacheInterval = 60e9
	cfg.Sweep.PlanInterval = 300e9
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	cfg.Server.Port = 0
	cfg.Limits.User.MaxTokens = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
	assert.Contains(t, err.Error(), "SERVER_PORT")
	assert.Contains(t, err.Error(), "LIMITS_USER_TOKENS")
}
