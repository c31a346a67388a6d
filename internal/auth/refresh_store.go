package auth

import (
	"errors"
	"time"
)

// RefreshTokenRow is the persisted shape of one refresh token. The row id is
// the token's JTI; only the HMAC hash of the raw token is stored.
type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// returned by Rotate when the old token was already revoked; a reuse of a
	// rotated token is treated as theft by the handler.
	ErrRefreshTokenReused = errors.New("refresh token already rotated")
)
