package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/tontine/internal/identity"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims carried by both access and refresh tokens. Subject holds the user id.
type Claims struct {
	Role string `json:"role"`
	Ver  int    `json:"ver"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Signer issues and parses HS256 tokens.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewSigner builds a token signer.
func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Issue signs an access/refresh pair for the user at its current token version.
func (s *Signer) Issue(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, kindAccess, s.accessSecret, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, kindRefresh, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

// IssueAccess signs a fresh access token only.
func (s *Signer) IssueAccess(user identity.User) (string, error) {
	return s.sign(user, kindAccess, s.accessSecret, s.accessTTL)
}

// ParseAccess validates an access token.
func (s *Signer) ParseAccess(token string) (Claims, error) {
	return s.parse(token, kindAccess, s.accessSecret)
}

// ParseRefresh validates a refresh token.
func (s *Signer) ParseRefresh(token string) (Claims, error) {
	return s.parse(token, kindRefresh, s.refreshSecret)
}

func (s *Signer) sign(user identity.User, kind string, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: user.Role,
		Ver:  user.TokenVersion,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *Signer) parse(token, kind string, secret []byte) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
