package auth

// Role is the caller's tier, carried in the access token's role claim.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)
