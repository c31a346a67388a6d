package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/geocoder89/pollhub/internal/domain/user"
)

type UsersRepo struct {
	s *Store
}

func NewUsersRepo(s *Store) *UsersRepo {
	return &UsersRepo{s: s}
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.ErrEmailTaken
		}
	}

	r.s.users[u.ID] = u

	return nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) CountByIDs(ctx context.Context, ids []string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0

	for _, id := range ids {
		if _, ok := r.s.users[id]; ok {
			count++
		}
	}

	return count, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}

	for id, existing := range r.s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, user.ErrEmailTaken
		}
	}

	r.s.users[u.ID] = u

	return u, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return user.ErrNotFound
	}

	delete(r.s.users, id)

	// Cascade the way the database foreign keys do.
	for key, v := range r.s.votes {
		if v.UserID == id {
			delete(r.s.votes, key)
		}
	}

	for tokenID, row := range r.s.refresh {
		if row.UserID == id {
			delete(r.s.refresh, tokenID)
		}
	}

	return nil
}
