package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StaffResponse is the public view of a staff member.
type StaffResponse struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Email string           `json:"email"`
	Role  domain.StaffRole `json:"role"`
}

// StaffLoginResponse is returned by POST /auth/staff/login.
type StaffLoginResponse struct {
	Staff StaffResponse `json:"staff"`
	Auth  AuthResponse  `json:"auth"`
}
