package auth

import "context"

// Pseudo-roles evaluated structurally rather than from the token.
const (
	// RoleAny matches every caller, authenticated or not.
	RoleAny = "any"
	// RoleAuthenticated matches any authenticated caller.
	RoleAuthenticated = "authenticated-user"
)

// User is the request-scoped caller identity consumed by the access
// evaluator.
type User struct {
	ID            string
	Authenticated bool
	Roles         []string
}

// Anonymous returns the unauthenticated caller identity.
func Anonymous() User {
	return User{}
}

// HasRole reports whether the user holds the given role, including the
// pseudo-roles "any" and "authenticated-user".
func (u User) HasRole(role string) bool {
	switch role {
	case RoleAny:
		return true
	case RoleAuthenticated:
		return u.Authenticated
	}
	for _, held := range u.Roles {
		if held == role {
			return true
		}
	}
	return false
}

// UserFromContext derives the caller identity from JWT claims in the
// context. Missing claims yield the anonymous user.
func UserFromContext(ctx context.Context) User {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return Anonymous()
	}
	return User{
		ID:            claims.Subject,
		Authenticated: true,
		Roles:         claims.Roles,
	}
}
