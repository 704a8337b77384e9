package audit

import (
	"context"
	"time"
)

// Store persists events and answers the audit queries.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID string, page Page) ([]Event, error)
	ListByGroup(ctx context.Context, groupID string, page Page) ([]Event, error)
	ListByAction(ctx context.Context, action string, page Page) ([]Event, error)
	ListAll(ctx context.Context, page Page) ([]Event, error)
	ListByRange(ctx context.Context, start, end time.Time, limit int) ([]Event, error)
	Stats(ctx context.Context) (Stats, error)
}
