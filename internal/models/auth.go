package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an admin or a professor.
type LoginRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	UserType UserRole `json:"userType" validate:"omitempty,oneof=admin professeur"`
}

// LoginResponse returns the issued token and the landing page for the role.
type LoginResponse struct {
	Token     string   `json:"token"`
	Redirect  string   `json:"redirect"`
	Role      UserRole `json:"role"`
	ExpiresIn int64    `json:"expires_in"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID int64    `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims carry the administrator role.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
