package memory

import (
	"context"
	"time"

	"github.com/geocoder89/pollhub/internal/auth"
)

type RefreshTokensRepo struct {
	s *Store
}

func NewRefreshTokensRepo(s *Store) *RefreshTokensRepo {
	return &RefreshTokensRepo{s: s}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row auth.RefreshTokenRow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.refresh[row.ID] = row

	return nil
}

func (r *RefreshTokensRepo) Get(ctx context.Context, id string) (auth.RefreshTokenRow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	row, ok := r.s.refresh[id]
	if !ok {
		return auth.RefreshTokenRow{}, auth.ErrRefreshTokenNotFound
	}

	return row, nil
}

// Rotate revokes the old token and stores its replacement in one locked step.
// A token that was already revoked signals reuse of a stolen refresh token.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID string, replacement auth.RefreshTokenRow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.refresh[oldID]
	if !ok {
		return auth.ErrRefreshTokenNotFound
	}

	if old.RevokedAt != nil {
		return auth.ErrRefreshTokenReused
	}

	now := time.Now().UTC()

	if now.After(old.ExpiresAt) {
		return auth.ErrRefreshTokenNotFound
	}

	old.RevokedAt = &now
	replacementID := replacement.ID
	old.ReplacedBy = &replacementID
	r.s.refresh[oldID] = old

	r.s.refresh[replacement.ID] = replacement

	return nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.refresh[id]
	if !ok {
		return nil
	}

	if row.RevokedAt == nil {
		now := time.Now().UTC()
		row.RevokedAt = &now
		r.s.refresh[id] = row
	}

	return nil
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()

	for id, row := range r.s.refresh {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
			r.s.refresh[id] = row
		}
	}

	return nil
}
