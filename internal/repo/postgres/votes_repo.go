package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VotesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewVotesRepo(pool *pgxpool.Pool, prom *observability.Prom) *VotesRepo {
	return &VotesRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *VotesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// InsertIfAbsent is the single write path for votes. It relies on the
// votes_user_poll_uniq constraint rather than a prior existence check, so
// two concurrent casts from one user resolve to exactly one winner; the
// loser surfaces vote.ErrDuplicate.
func (r *VotesRepo) InsertIfAbsent(ctx context.Context, v vote.Vote) (err error) {
	err = r.observe("votes.insert_if_absent", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO votes (id, poll_id, user_id, selected_option, created_at)
			 VALUES ($1,$2,$3,$4,$5)`,
			v.ID, v.PollID, v.UserID, v.SelectedOption, v.CreatedAt,
		)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" && pgErr.ConstraintName == "votes_user_poll_uniq" {
				err = vote.ErrDuplicate
				return
			}

			// poll deleted between the eligibility read and the insert
			if pgErr.Code == "23503" {
				err = poll.ErrNotFound
				return
			}
		}
		return
	}

	return
}

// ListByUser returns the user's votes, newest first, each joined with a
// summary of the voted-on poll for the my-votes view.
func (r *VotesRepo) ListByUser(ctx context.Context, userID string) (votes []vote.UserVote, err error) {
	var rows pgx.Rows

	err = r.observe("votes.list_by_user", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx,
			`SELECT v.id, v.poll_id, v.user_id, v.selected_option, v.created_at,
			        p.id, p.title, p.description
			 FROM votes v
			 JOIN polls p ON p.id = v.poll_id
			 WHERE v.user_id = $1
			 ORDER BY v.created_at DESC, v.id DESC`,
			userID,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	votes = make([]vote.UserVote, 0)

	for rows.Next() {
		var uv vote.UserVote

		e := rows.Scan(
			&uv.ID, &uv.PollID, &uv.UserID, &uv.SelectedOption, &uv.CreatedAt,
			&uv.Poll.ID, &uv.Poll.Title, &uv.Poll.Description,
		)

		if e != nil {
			err = e
			return
		}
		votes = append(votes, uv)
	}

	err = rows.Err()

	return
}
