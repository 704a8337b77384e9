package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	BumpTokenVersion(ctx context.Context, id string) (int, error)
	SubmitKYC(ctx context.Context, id, nationalID string) (User, error)
	SetKYCStatus(ctx context.Context, id, status string) (User, error)
	ListByKYCStatus(ctx context.Context, status string) ([]User, error)
	// AdjustScore adds delta to the reliability score, flooring the result at zero.
	AdjustScore(ctx context.Context, id string, delta int) (User, error)
	SetScore(ctx context.Context, id string, score int) (User, error)
	TopByReliability(ctx context.Context, limit int) ([]User, error)
}

const userColumns = `id, name, email, password_hash, role, national_id, kyc_status,
	reliability_score, token_version, created_at, last_login`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, name, email, password_hash, role, national_id, kyc_status,
        reliability_score, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID, user.Name, user.Email, user.PasswordHash, user.Role, user.NationalID, user.KYCStatus,
		user.ReliabilityScore, user.TokenVersion, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

// FindByEmail fetches a user by email, ignoring case.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// UpdateLastLogin stamps a successful authentication.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// BumpTokenVersion invalidates every token issued so far.
func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, ErrUserNotFound
	}
	var version int
	err = r.db.QueryRow(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`, userID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return version, err
}

// SubmitKYC records the national id and puts the user back in review.
func (r *PostgresRepository) SubmitKYC(ctx context.Context, id, nationalID string) (User, error) {
	return r.update(ctx, `UPDATE users SET national_id = $2, kyc_status = 'Pending' WHERE id = $1 RETURNING `+userColumns, id, nationalID)
}

// SetKYCStatus records the review outcome for a pending user. A user that is
// no longer pending yields ErrKYCNotPending.
func (r *PostgresRepository) SetKYCStatus(ctx context.Context, id, status string) (User, error) {
	user, err := r.update(ctx, `UPDATE users SET kyc_status = $2 WHERE id = $1 AND kyc_status = 'Pending' RETURNING `+userColumns, id, status)
	if !errors.Is(err, ErrUserNotFound) {
		return user, err
	}
	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return User{}, findErr
	}
	return User{}, ErrKYCNotPending
}

// ListByKYCStatus returns users in the given review state, oldest first.
func (r *PostgresRepository) ListByKYCStatus(ctx context.Context, status string) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users WHERE kyc_status = $1 ORDER BY created_at`, status)
}

// AdjustScore applies delta in a single statement so concurrent adjustments never interleave.
func (r *PostgresRepository) AdjustScore(ctx context.Context, id string, delta int) (User, error) {
	return r.update(ctx, `UPDATE users SET reliability_score = GREATEST(0, reliability_score + $2) WHERE id = $1 RETURNING `+userColumns, id, delta)
}

// SetScore overwrites the reliability score.
func (r *PostgresRepository) SetScore(ctx context.Context, id string, score int) (User, error) {
	return r.update(ctx, `UPDATE users SET reliability_score = GREATEST(0, $2) WHERE id = $1 RETURNING `+userColumns, id, score)
}

// TopByReliability returns the highest scored users.
func (r *PostgresRepository) TopByReliability(ctx context.Context, limit int) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users ORDER BY reliability_score DESC, created_at ASC LIMIT $1`, limit)
}

func (r *PostgresRepository) update(ctx context.Context, sql, id string, arg any) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return r.one(ctx, sql, userID, arg)
}

func (r *PostgresRepository) one(ctx context.Context, sql string, args ...any) (User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return User{}, err
	}
	user, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) many(ctx context.Context, sql string, args ...any) ([]User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.CollectableRow) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.NationalID,
		&user.KYCStatus, &user.ReliabilityScore, &user.TokenVersion, &createdAt, &lastLogin); err != nil {
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	if lastLogin != nil {
		at := lastLogin.UTC()
		user.LastLogin = &at
	}
	return user, nil
}
