package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/codexgate/codexgate/internal/api"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type contextKey string

const identityKey contextKey = "identity"

// Middleware validates the Bearer token and attaches the caller's Identity.
func Middleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := jwtManager.ValidateAccessToken(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			identity := Identity{UserID: userID, Role: Role(claims.Role)}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the caller identity set by Middleware. The zero
// Identity means the request was not authenticated.
func GetIdentity(ctx context.Context) Identity {
	identity, _ := ctx.Value(identityKey).(Identity)
	return identity
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if !allowed[identity.Role] {
				api.HandleError(w, api.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin allows only admin and super_admin callers.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin, RoleSuperAdmin)
}
