package models

import "github.com/golang-jwt/jwt/v5"

// Actor is the authenticated caller resolved from the session token.
type Actor struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
}

// SessionClaims is the payload of session tokens issued by the identity service.
type SessionClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Actor projects the claims onto the caller identity.
func (c *SessionClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role, Email: c.Email}
}
