package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectEventColumns = `SELECT id, user_id, group_id, action, details, metadata, ip_address, user_agent, created_at FROM audit_logs`

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed audit store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one event.
func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO audit_logs (id, user_id, group_id, action, details, metadata, ip_address, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, e.UserID, e.GroupID, e.Action, e.Details, payload, e.IPAddress, e.UserAgent, e.Timestamp.UTC())
	return err
}

// ListByUser returns a user's events, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, page Page) ([]Event, error) {
	page = page.Normalize()
	return s.query(ctx, selectEventColumns+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, page.Limit, page.Skip)
}

// ListByGroup returns a group's events, newest first.
func (s *PostgresStore) ListByGroup(ctx context.Context, groupID string, page Page) ([]Event, error) {
	page = page.Normalize()
	return s.query(ctx, selectEventColumns+` WHERE group_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, groupID, page.Limit, page.Skip)
}

// ListByAction returns events of one action type, newest first.
func (s *PostgresStore) ListByAction(ctx context.Context, action string, page Page) ([]Event, error) {
	page = page.Normalize()
	return s.query(ctx, selectEventColumns+` WHERE action = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, action, page.Limit, page.Skip)
}

// ListAll returns every event, newest first.
func (s *PostgresStore) ListAll(ctx context.Context, page Page) ([]Event, error) {
	page = page.Normalize()
	return s.query(ctx, selectEventColumns+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, page.Limit, page.Skip)
}

// ListByRange returns events with start <= timestamp <= end.
func (s *PostgresStore) ListByRange(ctx context.Context, start, end time.Time, limit int) ([]Event, error) {
	page := Page{Limit: limit}.Normalize()
	return s.query(ctx, selectEventColumns+` WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC LIMIT $3`, start.UTC(), end.UTC(), page.Limit)
}

// Stats aggregates totals per action plus the latest events.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&stats.TotalLogs); err != nil {
		return Stats{}, fmt.Errorf("count audit logs: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT action, COUNT(*) AS n FROM audit_logs GROUP BY action ORDER BY n DESC, action`)
	if err != nil {
		return Stats{}, fmt.Errorf("count audit actions: %w", err)
	}
	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ActionCount, error) {
		var ac ActionCount
		err := row.Scan(&ac.Action, &ac.Count)
		return ac, err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scan audit actions: %w", err)
	}
	stats.ActionCounts = counts

	stats.RecentActivity, err = s.ListAll(ctx, Page{Limit: recentLimit})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Event, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan audit logs: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (Event, error) {
	var (
		e        Event
		id       uuid.UUID
		metadata []byte
		created  time.Time
	)
	if err := row.Scan(&id, &e.UserID, &e.GroupID, &e.Action, &e.Details, &metadata, &e.IPAddress, &e.UserAgent, &created); err != nil {
		return Event{}, err
	}
	e.ID = id.String()
	e.Timestamp = created.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return Event{}, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return e, nil
}
