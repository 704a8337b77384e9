package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists groups as whole documents. Update is a compare-and-swap
// on Version: it fails with ErrVersionConflict when the stored version no
// longer matches and otherwise returns the group with its version bumped.
type Repository interface {
	Create(ctx context.Context, g Group) error
	Get(ctx context.Context, id string) (Group, error)
	Update(ctx context.Context, g Group) (Group, error)
	List(ctx context.Context) ([]Group, error)
	ListByMember(ctx context.Context, userID string) ([]Group, error)
}

// PostgresRepository stores groups in a JSONB document column.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed group repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new group document.
func (r *PostgresRepository) Create(ctx context.Context, g Group) error {
	groupID, err := uuid.Parse(g.ID)
	if err != nil {
		return err
	}
	adminID, err := uuid.Parse(g.AdminID)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode group: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO groups (id, admin_id, name, is_active, document, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		groupID, adminID, g.Name, g.IsActive, doc, g.Version, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	return err
}

// Get loads a group document by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Group, error) {
	groupID, err := uuid.Parse(id)
	if err != nil {
		return Group{}, ErrGroupNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT document, version FROM groups WHERE id = $1`, groupID)
	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	return g, err
}

// Update writes the document if the stored version still equals g.Version.
func (r *PostgresRepository) Update(ctx context.Context, g Group) (Group, error) {
	groupID, err := uuid.Parse(g.ID)
	if err != nil {
		return Group{}, ErrGroupNotFound
	}
	expected := g.Version
	g.Version = expected + 1
	doc, err := json.Marshal(g)
	if err != nil {
		return Group{}, fmt.Errorf("encode group: %w", err)
	}

	cmd, err := r.db.Exec(ctx, `UPDATE groups
        SET name = $1, is_active = $2, document = $3, version = version + 1, updated_at = $4
        WHERE id = $5 AND version = $6`,
		g.Name, g.IsActive, doc, g.UpdatedAt.UTC(), groupID, expected)
	if err != nil {
		return Group{}, err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists); err != nil {
			return Group{}, err
		}
		if !exists {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, ErrVersionConflict
	}
	return g, nil
}

// List returns every group, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Group, error) {
	rows, err := r.db.Query(ctx, `SELECT document, version FROM groups ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Group, error) { return scanGroup(row) })
}

// ListByMember returns the groups whose member list contains userID.
func (r *PostgresRepository) ListByMember(ctx context.Context, userID string) ([]Group, error) {
	rows, err := r.db.Query(ctx, `SELECT document, version FROM groups
        WHERE document -> 'members' @> jsonb_build_array($1::text)
        ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Group, error) { return scanGroup(row) })
}

func scanGroup(row pgx.Row) (Group, error) {
	var (
		doc     []byte
		version int64
		g       Group
	)
	if err := row.Scan(&doc, &version); err != nil {
		return Group{}, err
	}
	if err := json.Unmarshal(doc, &g); err != nil {
		return Group{}, fmt.Errorf("decode group: %w", err)
	}
	g.Version = version
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}
