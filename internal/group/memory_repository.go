package group

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	groups map[string]Group
}

// NewMemoryRepository builds an in-memory group store with the same
// compare-and-swap semantics as the Postgres repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{groups: make(map[string]Group)}
}

func (r *memoryRepository) Create(_ context.Context, g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.groups[g.ID]; exists {
		return errors.New("group exists")
	}
	r.groups[g.ID] = g.Clone()
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (r *memoryRepository) Update(_ context.Context, g Group) (Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.groups[g.ID]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	if stored.Version != g.Version {
		return Group{}, ErrVersionConflict
	}
	g.Version++
	r.groups[g.ID] = g.Clone()
	return g, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Group, error) {
	return r.collect(func(Group) bool { return true }), nil
}

func (r *memoryRepository) ListByMember(_ context.Context, userID string) ([]Group, error) {
	return r.collect(func(g Group) bool {
		for _, m := range g.Members {
			if m == userID {
				return true
			}
		}
		return false
	}), nil
}

func (r *memoryRepository) collect(match func(Group) bool) []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		if match(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
