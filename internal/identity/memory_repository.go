package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/congo-pay/tontine/internal/access"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
}

// NewMemoryRepository builds an in-memory user store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), byEmail: make(map[string]string)}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := emailKey(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return ErrEmailTaken
	}
	r.users[user.ID] = user
	r.byEmail[key] = user.ID
	return nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	_, err := r.modify(id, func(u *User) {
		at := at.UTC()
		u.LastLogin = &at
	})
	return err
}

func (r *memoryRepository) BumpTokenVersion(_ context.Context, id string) (int, error) {
	user, err := r.modify(id, func(u *User) { u.TokenVersion++ })
	return user.TokenVersion, err
}

func (r *memoryRepository) SubmitKYC(_ context.Context, id, nationalID string) (User, error) {
	return r.modify(id, func(u *User) {
		u.NationalID = nationalID
		u.KYCStatus = access.KYCPending
	})
}

func (r *memoryRepository) SetKYCStatus(_ context.Context, id, status string) (User, error) {
	var pending bool
	user, err := r.modify(id, func(u *User) {
		if pending = u.KYCStatus == access.KYCPending; pending {
			u.KYCStatus = status
		}
	})
	if err != nil {
		return User{}, err
	}
	if !pending {
		return User{}, ErrKYCNotPending
	}
	return user, nil
}

func (r *memoryRepository) ListByKYCStatus(_ context.Context, status string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []User
	for _, u := range r.users {
		if u.KYCStatus == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) AdjustScore(_ context.Context, id string, delta int) (User, error) {
	return r.modify(id, func(u *User) { u.ReliabilityScore = max(0, u.ReliabilityScore+delta) })
}

func (r *memoryRepository) SetScore(_ context.Context, id string, score int) (User, error) {
	return r.modify(id, func(u *User) { u.ReliabilityScore = max(0, score) })
}

func (r *memoryRepository) TopByReliability(_ context.Context, limit int) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReliabilityScore != out[j].ReliabilityScore {
			return out[i].ReliabilityScore > out[j].ReliabilityScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) modify(id string, apply func(u *User)) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	apply(&user)
	r.users[id] = user
	return user, nil
}
