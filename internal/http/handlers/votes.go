package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/pollhub/internal/cache"
	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
	"github.com/geocoder89/pollhub/internal/http/middlewares"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/gin-gonic/gin"
)

type VoteStore interface {
	InsertIfAbsent(ctx context.Context, v vote.Vote) error
	ListByUser(ctx context.Context, userID string) ([]vote.UserVote, error)
}

type PollReader interface {
	GetAggregate(ctx context.Context, id string) (poll.Aggregate, error)
}

type VotesHandler struct {
	votes VoteStore
	polls PollReader
	cache *cache.Cache
	prom  *observability.Prom
	now   func() time.Time
}

// NewVotesHandler wires the vote ledger. prom may be nil in tests.
func NewVotesHandler(votes VoteStore, polls PollReader, listCache *cache.Cache, prom *observability.Prom) *VotesHandler {
	return &VotesHandler{
		votes: votes,
		polls: polls,
		cache: listCache,
		prom:  prom,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (h *VotesHandler) countVote(outcome string) {
	if h.prom != nil {
		h.prom.VotesTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *VotesHandler) CastVote(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req vote.CastVoteRequest

	if !BindJSON(ctx, &req) {
		return
	}

	pollID := ctx.Param("id")
	cctx := ctx.Request.Context()

	agg, err := h.polls.GetAggregate(cctx, pollID)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			h.countVote("rejected")
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not cast vote")
		return
	}

	// An unreachable private poll answers 404 here too, same as on GET.
	if !agg.CanView(callerID) {
		h.countVote("rejected")
		RespondNotFound(ctx, "Poll not found")
		return
	}

	now := h.now()

	if !agg.AcceptsVotes(now) {
		h.countVote("rejected")
		RespondBadRequest(ctx, "Poll is closed.", gin.H{"reason": "poll_closed"})
		return
	}

	if !agg.HasOption(req.SelectedOption) {
		h.countVote("rejected")
		RespondBadRequest(ctx, "Selected option is not part of this poll.", gin.H{"reason": "invalid_option"})
		return
	}

	v := vote.New(pollID, callerID, req.SelectedOption, now)

	// The insert is the sole authority on "already voted": the unique
	// (userID, pollID) constraint decides, not a prior read.
	err = h.votes.InsertIfAbsent(cctx, v)

	if err != nil {
		if errors.Is(err, vote.ErrDuplicate) {
			h.countVote("duplicate")
			RespondConflict(ctx, "already_voted", "You have already voted on this poll.")
			return
		}

		if errors.Is(err, poll.ErrNotFound) {
			h.countVote("rejected")
			RespondNotFound(ctx, "Poll not found")
			return
		}

		RespondInternal(ctx, "Could not cast vote")
		return
	}

	h.countVote("accepted")
	h.cache.Clear()

	ctx.JSON(http.StatusCreated, v)
}

func (h *VotesHandler) MyVotes(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	votes, err := h.votes.ListByUser(ctx.Request.Context(), callerID)

	if err != nil {
		RespondInternal(ctx, "Could not list votes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": votes,
		"count": len(votes),
	})
}
