package user

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, "user not found")
	ErrEmailAlreadyUsed   = apperror.New(http.StatusConflict, "email already used")
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, "invalid email or password")
	ErrInactiveUser       = apperror.New(http.StatusForbidden, "user is inactive")
	ErrEmailRequired      = apperror.New(http.StatusBadRequest, "email is required")
	ErrPasswordTooShort   = apperror.New(http.StatusBadRequest, "password is too short")
	ErrInvalidLevel       = apperror.New(http.StatusBadRequest, "verification level must be between 0 and 4")
)

// MaxVerificationLevel is the highest identity verification tier. Levels:
//
//	0 unverified, 1 email, 2 phone, 3 identity document, 4 trusted owner
const MaxVerificationLevel = 4

// User represents an account. VerificationLevel gates owner-side features;
// publishing a parking requires level 3 or higher.
type User struct {
	ID                string // UUID
	Email             string
	PasswordHash      string
	DisplayName       *string
	Phone             *string
	VerificationLevel int
	CreatedAt         time.Time
	LastLoginAt       *time.Time
	IsActive          bool
	IsAdmin           bool
}

// Filter defines filter options for listing users.
type Filter struct {
	Email    string
	IsActive *bool

	Page     int
	PageSize int
}
