package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
)

type PollsRepo struct {
	s *Store
}

func NewPollsRepo(s *Store) *PollsRepo {
	return &PollsRepo{s: s}
}

func (r *PollsRepo) Create(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.polls[p.ID] = p
	r.s.allowed[p.ID] = append([]string(nil), allowedUserIDs...)

	return nil
}

func (r *PollsRepo) GetAggregate(ctx context.Context, id string) (poll.Aggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.polls[id]

	if !ok {
		return poll.Aggregate{}, poll.ErrNotFound
	}

	return r.s.aggregateLocked(p), nil
}

func (r *PollsRepo) ListAggregates(ctx context.Context) ([]poll.Aggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	aggs := make([]poll.Aggregate, 0, len(r.s.polls))

	for _, p := range r.s.polls {
		aggs = append(aggs, r.s.aggregateLocked(p))
	}

	// newest first, id as tie-break for a stable order
	sort.Slice(aggs, func(i, j int) bool {
		if !aggs[i].CreatedAt.Equal(aggs[j].CreatedAt) {
			return aggs[i].CreatedAt.After(aggs[j].CreatedAt)
		}
		return aggs[i].ID > aggs[j].ID
	})

	return aggs, nil
}

func (r *PollsRepo) Update(ctx context.Context, p poll.Poll) (poll.Poll, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.polls[p.ID]; !ok {
		return poll.Poll{}, poll.ErrNotFound
	}

	r.s.polls[p.ID] = p

	return p, nil
}

func (r *PollsRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.polls[id]; !ok {
		return poll.ErrNotFound
	}

	delete(r.s.polls, id)
	delete(r.s.allowed, id)

	// cascade: a deleted poll leaves no orphaned votes
	for key := range r.s.votes {
		if strings.HasPrefix(key, id+"|") {
			delete(r.s.votes, key)
		}
	}

	return nil
}

// caller must hold at least a read lock
func (s *Store) aggregateLocked(p poll.Poll) poll.Aggregate {
	agg := poll.Aggregate{
		Poll:           p,
		AllowedUserIDs: append([]string(nil), s.allowed[p.ID]...),
		Votes:          make([]vote.Vote, 0),
	}

	for key, v := range s.votes {
		if strings.HasPrefix(key, p.ID+"|") {
			agg.Votes = append(agg.Votes, v)
		}
	}

	sort.Slice(agg.Votes, func(i, j int) bool {
		if !agg.Votes[i].CreatedAt.Equal(agg.Votes[j].CreatedAt) {
			return agg.Votes[i].CreatedAt.Before(agg.Votes[j].CreatedAt)
		}
		return agg.Votes[i].ID < agg.Votes[j].ID
	})

	return agg
}
