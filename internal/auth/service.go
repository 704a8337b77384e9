package auth

import (
	"context"
	"errors"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/identity"
)

// Service issues, refreshes and revokes tokens on top of the identity service.
type Service struct {
	signer *Signer
	users  *identity.Service
}

// NewService builds an auth service.
func NewService(signer *Signer, users *identity.Service) *Service {
	return &Service{signer: signer, users: users}
}

// Login validates credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (identity.User, TokenPair, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return identity.User{}, TokenPair{}, err
	}
	pair, err := s.signer.Issue(user)
	if err != nil {
		return identity.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh verifies the refresh token and returns a new access token if the
// user has not logged out since it was issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.signer.ParseRefresh(refreshToken)
	if err != nil {
		return "", 0, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	token, err := s.signer.IssueAccess(user)
	if err != nil {
		return "", 0, err
	}
	return token, int64(s.signer.accessTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	_, err := s.users.RevokeTokens(ctx, userID)
	return err
}

// Verify resolves an access token to the caller. Role and KYC status come from
// the user record, so review decisions apply without re-login.
func (s *Service) Verify(ctx context.Context, token string) (access.Actor, error) {
	claims, err := s.signer.ParseAccess(token)
	if err != nil {
		return access.Actor{}, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return access.Actor{}, err
	}
	return user.Actor(), nil
}

func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.users.Get(ctx, claims.Subject)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrInvalidToken
	}
	if err != nil {
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Ver {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}
