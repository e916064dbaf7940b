package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager("access-secret-32-chars-long!!!!!", 15*time.Minute)

	t.Run("generate and validate access token", func(t *testing.T) {
		token, err := mgr.GenerateAccessToken("user-123", "admin")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := mgr.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret fails validation", func(t *testing.T) {
		other := NewJWTManager("other-secret-32-chars-long!!!!!!", 15*time.Minute)
		token, err := other.GenerateAccessToken("user-456", "user")
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		shortMgr := NewJWTManager("access-secret-32-chars-long!!!!!", -1*time.Second)
		token, err := shortMgr.GenerateAccessToken("user-exp", "user")
		require.NoError(t, err)

		_, err = shortMgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}
