package memory

import (
	"context"
	"sort"

	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
)

type VotesRepo struct {
	s *Store
}

func NewVotesRepo(s *Store) *VotesRepo {
	return &VotesRepo{s: s}
}

// InsertIfAbsent mirrors the postgres unique-constraint semantics: the
// existence check and the insert happen under one lock, so concurrent casts
// for the same (userID, pollID) yield exactly one winner.
func (r *VotesRepo) InsertIfAbsent(ctx context.Context, v vote.Vote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.polls[v.PollID]; !ok {
		return poll.ErrNotFound
	}

	key := voteKey(v.PollID, v.UserID)

	if _, exists := r.s.votes[key]; exists {
		return vote.ErrDuplicate
	}

	r.s.votes[key] = v

	return nil
}

func (r *VotesRepo) ListByUser(ctx context.Context, userID string) ([]vote.UserVote, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]vote.UserVote, 0)

	for _, v := range r.s.votes {
		if v.UserID != userID {
			continue
		}

		p, ok := r.s.polls[v.PollID]
		if !ok {
			continue
		}

		out = append(out, vote.UserVote{
			Vote: v,
			Poll: vote.PollSummary{
				ID:          p.ID,
				Title:       p.Title,
				Description: p.Description,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	return out, nil
}
