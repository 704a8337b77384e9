// Package access holds the capability predicates shared by the HTTP gate and
// the group service.
package access

import "errors"

// Roles a user may hold on the platform.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// KYC states. Transitions out of Pending are performed by administrators only.
const (
	KYCPending  = "Pending"
	KYCVerified = "Verified"
	KYCRejected = "Rejected"
)

// ErrKYCRequired is returned when a mutating action needs a verified identity.
var ErrKYCRequired = errors.New("kyc verification required")

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID    string
	Role      string
	KYCStatus string
}

// IsAdmin reports whether the actor is a platform administrator.
func IsAdmin(a Actor) bool {
	return a.Role == RoleAdmin
}

// IsVerified reports whether the actor passed KYC. Platform administrators
// are always treated as verified.
func IsVerified(a Actor) bool {
	return IsAdmin(a) || a.KYCStatus == KYCVerified
}

// IsMember reports whether userID is present in members.
func IsMember(members []string, userID string) bool {
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}

// RequireVerified returns ErrKYCRequired unless the actor is verified.
func RequireVerified(a Actor) error {
	if !IsVerified(a) {
		return ErrKYCRequired
	}
	return nil
}

// ValidKYCStatus reports whether s is one of the known KYC states.
func ValidKYCStatus(s string) bool {
	switch s {
	case KYCPending, KYCVerified, KYCRejected:
		return true
	}
	return false
}
