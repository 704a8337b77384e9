package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingSink struct{ calls int }

func (s *failingSink) Append(context.Context, Event) error {
	s.calls++
	return errors.New("sink down")
}

func TestPublisherStampsAndFansOut(t *testing.T) {
	store := NewMemoryStore()
	broken := &failingSink{}
	pub := NewPublisher(broken, nil, store)

	ctx := WithClient(context.Background(), "10.0.0.7", "curl/8.0")
	err := pub.Record(ctx, Event{UserID: "u1", GroupID: "g1", Action: ActionGroupCreated})
	require.Error(t, err, "failing sink error is reported to the caller")
	require.Equal(t, 1, broken.calls)

	events, err := store.ListByUser(context.Background(), "u1", Page{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].ID)
	require.False(t, events[0].Timestamp.IsZero())
	require.Equal(t, "10.0.0.7", events[0].IPAddress)
	require.Equal(t, "curl/8.0", events[0].UserAgent)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var pub *Publisher
	require.NoError(t, pub.Record(context.Background(), Event{Action: ActionUserLogin}))
}

func TestMemoryStoreQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, Event{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			GroupID:   "g1",
			Action:    ActionContributionMarked,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.Append(ctx, Event{UserID: "u2", Action: ActionGroupCreated, Timestamp: base.Add(10 * time.Hour)}))

	page, err := store.ListByGroup(ctx, "g1", Page{Limit: 2, Skip: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "d", page[0].ID, "newest first after skipping one")

	byAction, err := store.ListByAction(ctx, ActionGroupCreated, Page{})
	require.NoError(t, err)
	require.Len(t, byAction, 1)

	ranged, err := store.ListByRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, ranged, 3)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6, stats.TotalLogs)
	require.Equal(t, ActionContributionMarked, stats.ActionCounts[0].Action)
	require.EqualValues(t, 5, stats.ActionCounts[0].Count)
	require.Equal(t, "u2", stats.RecentActivity[0].UserID)
}

func TestPageNormalize(t *testing.T) {
	require.Equal(t, Page{Limit: defaultLimit}, Page{Limit: -1, Skip: -3}.Normalize())
	require.Equal(t, maxLimit, Page{Limit: 10_000}.Normalize().Limit)
}
