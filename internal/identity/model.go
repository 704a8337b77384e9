package identity

import (
	"errors"
	"time"

	"github.com/congo-pay/tontine/internal/access"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAlreadyVerified    = errors.New("kyc already verified")
	ErrKYCNotPending      = errors.New("kyc is not awaiting review")
)

// User represents a registered tontine participant.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     []byte     `json:"-"`
	Role             string     `json:"role"`
	NationalID       string     `json:"national_id,omitempty"`
	KYCStatus        string     `json:"kyc_status"`
	ReliabilityScore int        `json:"reliability_score"`
	TokenVersion     int        `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

// Actor returns the capability view of the user.
func (u User) Actor() access.Actor {
	return access.Actor{UserID: u.ID, Role: u.Role, KYCStatus: u.KYCStatus}
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}
