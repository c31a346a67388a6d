package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PollsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPollsRepo(pool *pgxpool.Pool, prom *observability.Prom) *PollsRepo {
	return &PollsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *PollsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create persists the poll and its allow-list in one transaction: a private
// poll must never exist with half its allow-list.
func (r *PollsRepo) Create(ctx context.Context, p poll.Poll, allowedUserIDs []string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("polls.create.insert", func() error {
		_, e := tx.Exec(ctx,
			`INSERT INTO polls (id, title, description, options, visibility, expires_at, is_active, created_by_id, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			p.ID, p.Title, p.Description, p.Options, p.Visibility, p.ExpiresAt, p.IsActive, p.CreatedByID, p.CreatedAt, p.UpdatedAt,
		)
		return e
	})

	if err != nil {
		return
	}

	err = r.setAllowedUsersTx(ctx, tx, p.ID, allowedUserIDs)

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

func (r *PollsRepo) setAllowedUsersTx(ctx context.Context, tx pgx.Tx, pollID string, userIDs []string) error {
	return r.observe("polls.set_allowed_users", func() error {
		_, err := tx.Exec(ctx, `DELETE FROM poll_allowed_users WHERE poll_id = $1`, pollID)
		if err != nil {
			return err
		}

		for _, userID := range userIDs {
			_, err = tx.Exec(ctx,
				`INSERT INTO poll_allowed_users (poll_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				pollID, userID,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAggregate reads the poll with its allow-list and votes fully populated.
func (r *PollsRepo) GetAggregate(ctx context.Context, id string) (agg poll.Aggregate, err error) {
	err = r.observe("polls.get", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, title, description, options, visibility, expires_at, is_active, created_by_id, created_at, updated_at
			 FROM polls
			 WHERE id = $1`,
			id,
		).Scan(
			&agg.ID, &agg.Title, &agg.Description, &agg.Options, &agg.Visibility,
			&agg.ExpiresAt, &agg.IsActive, &agg.CreatedByID, &agg.CreatedAt, &agg.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = poll.ErrNotFound
		}
		return
	}

	agg.AllowedUserIDs, err = r.allowedUserIDs(ctx, id)

	if err != nil {
		return
	}

	agg.Votes, err = r.votesForPoll(ctx, id)

	return
}

// ListAggregates returns every poll, newest first, each with allow-list and
// votes. Visibility filtering is the caller's job: which polls survive
// depends on who is asking.
func (r *PollsRepo) ListAggregates(ctx context.Context) (aggs []poll.Aggregate, err error) {
	var rows pgx.Rows

	err = r.observe("polls.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT id, title, description, options, visibility, expires_at, is_active, created_by_id, created_at, updated_at
			 FROM polls
			 ORDER BY created_at DESC, id DESC`,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	aggs = make([]poll.Aggregate, 0)
	index := make(map[string]int)

	for rows.Next() {
		var a poll.Aggregate

		e := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Options, &a.Visibility,
			&a.ExpiresAt, &a.IsActive, &a.CreatedByID, &a.CreatedAt, &a.UpdatedAt,
		)
		if e != nil {
			err = e
			return
		}

		a.AllowedUserIDs = make([]string, 0)
		a.Votes = make([]vote.Vote, 0)
		index[a.ID] = len(aggs)
		aggs = append(aggs, a)
	}

	if e := rows.Err(); e != nil {
		err = e
		return
	}

	if len(aggs) == 0 {
		return
	}

	err = r.observe("polls.list.allowed_users", func() error {
		allowRows, qerr := r.pool.Query(ctx, `SELECT poll_id, user_id FROM poll_allowed_users`)
		if qerr != nil {
			return qerr
		}
		defer allowRows.Close()

		for allowRows.Next() {
			var pollID, userID string
			if serr := allowRows.Scan(&pollID, &userID); serr != nil {
				return serr
			}
			if i, ok := index[pollID]; ok {
				aggs[i].AllowedUserIDs = append(aggs[i].AllowedUserIDs, userID)
			}
		}
		return allowRows.Err()
	})

	if err != nil {
		return
	}

	err = r.observe("polls.list.votes", func() error {
		voteRows, qerr := r.pool.Query(ctx,
			`SELECT id, poll_id, user_id, selected_option, created_at
			 FROM votes
			 ORDER BY created_at ASC, id ASC`,
		)
		if qerr != nil {
			return qerr
		}
		defer voteRows.Close()

		for voteRows.Next() {
			var v vote.Vote
			if serr := voteRows.Scan(&v.ID, &v.PollID, &v.UserID, &v.SelectedOption, &v.CreatedAt); serr != nil {
				return serr
			}
			if i, ok := index[v.PollID]; ok {
				aggs[i].Votes = append(aggs[i].Votes, v)
			}
		}
		return voteRows.Err()
	})

	return
}

// Update rewrites the mutable columns. The patched poll was validated by the
// domain layer; id and created_by_id never change.
func (r *PollsRepo) Update(ctx context.Context, p poll.Poll) (updated poll.Poll, err error) {
	err = r.observe("polls.update", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE polls
			 SET title = $2,
			     description = $3,
			     options = $4,
			     visibility = $5,
			     expires_at = $6,
			     is_active = $7,
			     updated_at = $8
			 WHERE id = $1
			 RETURNING id, title, description, options, visibility, expires_at, is_active, created_by_id, created_at, updated_at`,
			p.ID, p.Title, p.Description, p.Options, p.Visibility, p.ExpiresAt, p.IsActive, p.UpdatedAt,
		).Scan(
			&updated.ID, &updated.Title, &updated.Description, &updated.Options, &updated.Visibility,
			&updated.ExpiresAt, &updated.IsActive, &updated.CreatedByID, &updated.CreatedAt, &updated.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = poll.ErrNotFound
		}
		return
	}

	return
}

// Delete removes the poll; votes and allow-list rows go with it via
// ON DELETE CASCADE, so a delete can never leave orphaned votes.
func (r *PollsRepo) Delete(ctx context.Context, id string) (err error) {
	err = r.observe("polls.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
		if e != nil {
			return e
		}

		if tag.RowsAffected() == 0 {
			return poll.ErrNotFound
		}
		return nil
	})

	return
}

func (r *PollsRepo) allowedUserIDs(ctx context.Context, pollID string) (ids []string, err error) {
	err = r.observe("polls.get.allowed_users", func() error {
		rows, qerr := r.pool.Query(ctx, `SELECT user_id FROM poll_allowed_users WHERE poll_id = $1`, pollID)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()

		ids = make([]string, 0)

		for rows.Next() {
			var id string
			if serr := rows.Scan(&id); serr != nil {
				return serr
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})

	return
}

func (r *PollsRepo) votesForPoll(ctx context.Context, pollID string) (votes []vote.Vote, err error) {
	err = r.observe("polls.get.votes", func() error {
		rows, qerr := r.pool.Query(ctx,
			`SELECT id, poll_id, user_id, selected_option, created_at
			 FROM votes
			 WHERE poll_id = $1
			 ORDER BY created_at ASC, id ASC`,
			pollID,
		)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()

		votes = make([]vote.Vote, 0)

		for rows.Next() {
			var v vote.Vote
			if serr := rows.Scan(&v.ID, &v.PollID, &v.UserID, &v.SelectedOption, &v.CreatedAt); serr != nil {
				return serr
			}
			votes = append(votes, v)
		}
		return rows.Err()
	})

	return
}
