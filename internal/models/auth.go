package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignUpRequest creates an identity together with its profile.
type SignUpRequest struct {
	Email       string   `json:"email" validate:"required,email"`
	Password    string   `json:"password" validate:"required,min=6"`
	Role        UserRole `json:"role" validate:"omitempty,oneof=Reportero Editor"`
	DisplayName string   `json:"display_name" validate:"max=120"`
}

// SignInRequest holds credentials for authenticating.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns the issued token and the resolved session.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens. The role is not
// embedded; it is read from the profile store when a session is restored.
type JWTClaims struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}
