package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role 用户角色
type Role string

const (
	RoleDonor Role = "donor"
	RoleNGO   Role = "ngo"
	RoleAdmin Role = "admin"
)

// User represents an authenticated principal.
// For NGOs the ID is the registration id, for donors the donor id.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Credential stores a login secret for a donor or NGO account.
type Credential struct {
	ID           string    `json:"id"`
	SubjectID    string    `json:"subject_id" validate:"required"`
	Email        string    `json:"email" validate:"required,email"`
	Role         Role      `json:"role" validate:"required,oneof=donor ngo admin"`
	PasswordHash string    `json:"password_hash" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c Credential) RecordID() string { return c.ID }

func (c *Credential) Stamp(id string, now time.Time) {
	c.ID = id
	c.CreatedAt = now
}

// UserLoginRequest represents the request payload for login
type UserLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserLoginResponse represents the response payload for login
type UserLoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshTokenRequest represents the request payload for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Type   string `json:"type"` // "access" or "refresh"
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "sevaconnect", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.UserID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// User returns the principal the claims describe.
func (c *TokenClaims) User() User {
	return User{ID: c.UserID, Email: c.Email, Role: c.Role}
}
