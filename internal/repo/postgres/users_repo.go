package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, email, password_hash, name, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row, u *user.User) error {
	return row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (err error) {
	err = r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = user.ErrEmailTaken
		}
		return
	}

	return
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (u user.User, err error) {
	err = r.observe("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = user.ErrNotFound
		}
		return user.User{}, err
	}

	return
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (u user.User, err error) {
	err = r.observe("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = user.ErrNotFound
		}
		return user.User{}, err
	}

	return
}

// CountByIDs reports how many of the given ids exist. Allow-list validation
// compares it against len(ids).
func (r *UsersRepo) CountByIDs(ctx context.Context, ids []string) (count int, err error) {
	err = r.observe("users.count_by_ids", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM users WHERE id = ANY($1)`, ids,
		).Scan(&count)
	})

	return
}

func (r *UsersRepo) List(ctx context.Context) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		var u user.User

		e := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)

		if e != nil {
			err = e
			return
		}
		users = append(users, u)
	}

	err = rows.Err()

	return
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) (updated user.User, err error) {
	err = r.observe("users.update", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`UPDATE users
			 SET email = $2, name = $3, role = $4, is_active = $5, updated_at = $6
			 WHERE id = $1
			 RETURNING `+userColumns,
			u.ID, u.Email, u.Name, u.Role, u.IsActive, u.UpdatedAt,
		), &updated)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			err = user.ErrNotFound
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			err = user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return
}

func (r *UsersRepo) Delete(ctx context.Context, id string) (err error) {
	err = r.observe("users.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if e != nil {
			return e
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})

	return
}
