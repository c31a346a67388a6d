package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/pollhub/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
}

func NewRefreshTokensRepo(pool *pgxpool.Pool) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row auth.RefreshTokenRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt,
	)
	return err
}

func (r *RefreshTokensRepo) Get(ctx context.Context, id string) (auth.RefreshTokenRow, error) {
	var row auth.RefreshTokenRow

	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
		 FROM refresh_tokens
		 WHERE id = $1`,
		id,
	).Scan(&row.ID, &row.UserID, &row.TokenHash, &row.ExpiresAt, &row.RevokedAt, &row.ReplacedBy, &row.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.RefreshTokenRow{}, auth.ErrRefreshTokenNotFound
		}

		return auth.RefreshTokenRow{}, err
	}

	return row, nil
}

// Rotate atomically revokes the old token and inserts its replacement. The
// old row is locked FOR UPDATE so two concurrent refreshes with the same
// token cannot both rotate; the loser sees ErrRefreshTokenReused.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID string, replacement auth.RefreshTokenRow) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var revokedAt *time.Time
	var expiresAt time.Time

	err = tx.QueryRow(ctx,
		`SELECT revoked_at, expires_at
		 FROM refresh_tokens
		 WHERE id = $1
		 FOR UPDATE`,
		oldID,
	).Scan(&revokedAt, &expiresAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = auth.ErrRefreshTokenNotFound
		}
		return
	}

	if revokedAt != nil {
		err = auth.ErrRefreshTokenReused
		return
	}

	if time.Now().UTC().After(expiresAt) {
		err = auth.ErrRefreshTokenNotFound
		return
	}

	_, err = tx.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = NOW(), replaced_by = $2
		 WHERE id = $1`,
		oldID, replacement.ID,
	)

	if err != nil {
		return
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		replacement.ID, replacement.UserID, replacement.TokenHash, replacement.ExpiresAt,
		replacement.RevokedAt, replacement.ReplacedBy, replacement.CreatedAt,
	)

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

// Revoke marks one token revoked; idempotent.
func (r *RefreshTokensRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = NOW()
		 WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)

	return err
}

func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = NOW()
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)

	return err
}
