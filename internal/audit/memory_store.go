package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore builds an in-memory audit store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID string, page Page) ([]Event, error) {
	return s.filter(page, func(e Event) bool { return e.UserID == userID }), nil
}

func (s *memoryStore) ListByGroup(_ context.Context, groupID string, page Page) ([]Event, error) {
	return s.filter(page, func(e Event) bool { return e.GroupID == groupID }), nil
}

func (s *memoryStore) ListByAction(_ context.Context, action string, page Page) ([]Event, error) {
	return s.filter(page, func(e Event) bool { return e.Action == action }), nil
}

func (s *memoryStore) ListAll(_ context.Context, page Page) ([]Event, error) {
	return s.filter(page, func(Event) bool { return true }), nil
}

func (s *memoryStore) ListByRange(_ context.Context, start, end time.Time, limit int) ([]Event, error) {
	return s.filter(Page{Limit: limit}, func(e Event) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(end)
	}), nil
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, e := range s.events {
		counts[e.Action]++
	}
	total := int64(len(s.events))
	s.mu.RUnlock()

	stats := Stats{TotalLogs: total, ActionCounts: make([]ActionCount, 0, len(counts))}
	for action, n := range counts {
		stats.ActionCounts = append(stats.ActionCounts, ActionCount{Action: action, Count: n})
	}
	sort.Slice(stats.ActionCounts, func(i, j int) bool {
		if stats.ActionCounts[i].Count != stats.ActionCounts[j].Count {
			return stats.ActionCounts[i].Count > stats.ActionCounts[j].Count
		}
		return stats.ActionCounts[i].Action < stats.ActionCounts[j].Action
	})
	stats.RecentActivity = s.filter(Page{Limit: recentLimit}, func(Event) bool { return true })
	return stats, nil
}

// filter returns matching events newest first, paginated.
func (s *memoryStore) filter(page Page, match func(Event) bool) []Event {
	page = page.Normalize()
	s.mu.RLock()
	matched := make([]Event, 0)
	for _, e := range s.events {
		if match(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if page.Skip >= len(matched) {
		return []Event{}
	}
	matched = matched[page.Skip:]
	if len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched
}
