package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
)

const minPasswordLength = 8

// Service manages the user lifecycle: registration, credentials and KYC review.
type Service struct {
	repo     Repository
	recorder audit.Recorder
	logger   *slog.Logger
	isAdmin  func(email string) bool
	now      func() time.Time
}

// NewService creates a new identity service. isAdmin marks bootstrap
// administrator addresses and may be nil.
func NewService(repo Repository, recorder audit.Recorder, logger *slog.Logger, isAdmin func(email string) bool) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		isAdmin:  isAdmin,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a member account pending KYC. Bootstrap administrators are
// created verified.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return User{}, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(input.Email))
	if err != nil {
		return User{}, fmt.Errorf("email is malformed: %w", ErrInvalidInput)
	}
	if len(input.Password) < minPasswordLength {
		return User{}, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	email := strings.ToLower(addr.Address)
	user := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         access.RoleMember,
		KYCStatus:    access.KYCPending,
		CreatedAt:    s.now(),
	}
	if s.isAdmin(email) {
		user.Role = access.RoleAdmin
		user.KYCStatus = access.KYCVerified
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("role", user.Role))
	s.emit(ctx, audit.Event{UserID: user.ID, Action: audit.ActionUserRegistered, Details: user.Email})
	return user, nil
}

// Authenticate verifies credentials and stamps the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return User{}, err
	}
	user.LastLogin = &now

	s.emit(ctx, audit.Event{UserID: user.ID, Action: audit.ActionUserLogin})
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// RevokeTokens bumps the token version so previously issued tokens stop validating.
func (s *Service) RevokeTokens(ctx context.Context, id string) (int, error) {
	return s.repo.BumpTokenVersion(ctx, id)
}

// SubmitKYC stores the caller's national id and queues it for review.
func (s *Service) SubmitKYC(ctx context.Context, actor access.Actor, nationalID string) (User, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return User{}, fmt.Errorf("national id is required: %w", ErrInvalidInput)
	}
	current, err := s.repo.FindByID(ctx, actor.UserID)
	if err != nil {
		return User{}, err
	}
	if current.KYCStatus == access.KYCVerified {
		return User{}, ErrAlreadyVerified
	}
	user, err := s.repo.SubmitKYC(ctx, actor.UserID, nationalID)
	if err != nil {
		return User{}, err
	}
	s.emit(ctx, audit.Event{UserID: user.ID, Action: audit.ActionKYCSubmitted})
	return user, nil
}

// VerifyKYC approves a user's identity. Platform admin only.
func (s *Service) VerifyKYC(ctx context.Context, actor access.Actor, userID string) (User, error) {
	return s.review(ctx, actor, userID, access.KYCVerified, audit.ActionKYCVerified)
}

// RejectKYC declines a user's identity. Platform admin only.
func (s *Service) RejectKYC(ctx context.Context, actor access.Actor, userID string) (User, error) {
	return s.review(ctx, actor, userID, access.KYCRejected, audit.ActionKYCRejected)
}

// PendingKYC lists users awaiting review. Platform admin only.
func (s *Service) PendingKYC(ctx context.Context, actor access.Actor) ([]User, error) {
	if !access.IsAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	return s.repo.ListByKYCStatus(ctx, access.KYCPending)
}

func (s *Service) review(ctx context.Context, actor access.Actor, userID, status, action string) (User, error) {
	if !access.IsAdmin(actor) {
		return User{}, ErrNotAuthorized
	}
	current, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if current.KYCStatus != access.KYCPending {
		return User{}, ErrKYCNotPending
	}
	user, err := s.repo.SetKYCStatus(ctx, userID, status)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("kyc reviewed",
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("reviewer_id", actor.UserID),
	)
	s.emit(ctx, audit.Event{UserID: userID, Action: action, Metadata: map[string]any{"reviewer_id": actor.UserID}})
	return user, nil
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", e.Action), slog.Any("error", err))
	}
}
