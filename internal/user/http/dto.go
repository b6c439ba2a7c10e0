package http

import (
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/user"
)

// RegisterRequest defines the payload for user registration.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"omitempty,max=100"`
}

// LoginRequest defines the payload for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SetVerificationLevelRequest defines the admin payload for changing a
// user's verification level.
type SetVerificationLevelRequest struct {
	Level *int `json:"level" binding:"required,min=0,max=4"`
}

// ListUsersRequest defines query parameters for listing users.
type ListUsersRequest struct {
	Email    string `form:"email"`
	IsActive *bool  `form:"is_active"`
	Page     int    `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
}

// UserResponse is the shape of user data returned in API responses.
type UserResponse struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	DisplayName       *string    `json:"display_name"`
	Phone             *string    `json:"phone,omitempty"`
	VerificationLevel int        `json:"verification_level"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	IsActive          bool       `json:"is_active"`
}

// NewUserResponse converts a domain user to the API shape.
func NewUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:                u.ID,
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		Phone:             u.Phone,
		VerificationLevel: u.VerificationLevel,
		CreatedAt:         u.CreatedAt,
		LastLoginAt:       u.LastLoginAt,
		IsActive:          u.IsActive,
	}
}

// LoginResponse returns the token and user info.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// MeResponse returns the current user info.
type MeResponse struct {
	User UserResponse `json:"user"`
}
