package auth

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenPayload captures the data available when minting a session token.
type SessionTokenPayload struct {
	UserID string
	Email  string
	Role   enums.UserRole
	JTI    string
}

// SessionTokenClaims is the identity provider's session token. The user id
// travels in the registered subject claim.
type SessionTokenClaims struct {
	Email string         `json:"email,omitempty"`
	Role  enums.UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *SessionTokenClaims) UserID() string {
	return c.Subject
}

// EffectiveRole defaults a missing role claim to a regular shopper.
func (c *SessionTokenClaims) EffectiveRole() enums.UserRole {
	if c.Role.IsValid() {
		return c.Role
	}
	return enums.UserRoleUser
}
