package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/pollhub/internal/cache"
	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PollStore interface {
	Create(ctx context.Context, p poll.Poll, allowedUserIDs []string) error
	GetAggregate(ctx context.Context, id string) (poll.Aggregate, error)
	ListAggregates(ctx context.Context) ([]poll.Aggregate, error)
	Update(ctx context.Context, p poll.Poll) (poll.Poll, error)
	Delete(ctx context.Context, id string) error
}

type UserCounter interface {
	CountByIDs(ctx context.Context, ids []string) (int, error)
}

type PollsHandler struct {
	polls PollStore
	users UserCounter
	cache *cache.Cache
	now   func() time.Time
}

func NewPollsHandler(polls PollStore, users UserCounter, listCache *cache.Cache) *PollsHandler {
	return &PollsHandler{
		polls: polls,
		users: users,
		cache: listCache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// pollView is the decorated wire shape of a poll: the stored fields plus the
// derived bits every client would otherwise recompute. The allow-list is
// only present when the caller owns the poll.
type pollView struct {
	poll.Poll
	IsExpired      bool                `json:"isExpired"`
	CanVote        bool                `json:"canVote"`
	TotalVotes     int                 `json:"totalVotes"`
	Results        []poll.OptionResult `json:"results"`
	AllowedUserIDs []string            `json:"allowedUserIds,omitempty"`
}

func buildPollView(agg poll.Aggregate, callerID string, now time.Time) pollView {
	v := pollView{
		Poll:       agg.Poll,
		IsExpired:  agg.IsExpired(now),
		CanVote:    agg.CanVote(callerID, now),
		TotalVotes: len(agg.Votes),
		Results:    poll.ComputeResults(agg.Options, agg.Votes),
	}

	if callerID == agg.CreatedByID {
		v.AllowedUserIDs = agg.AllowedUserIDs
	}

	return v
}

func listCacheKey(callerID string) string {
	return "polls:list:v1:user=" + callerID
}

func (h *PollsHandler) ListPolls(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	if cached, hit := h.cache.Get(listCacheKey(callerID)); hit {
		if views, ok := cached.([]pollView); ok {
			ctx.JSON(http.StatusOK, gin.H{
				"items": views,
				"count": len(views),
			})
			return
		}
	}

	aggs, err := h.polls.ListAggregates(ctx.Request.Context())

	if err != nil {
		RespondInternal(ctx, "Could not list polls")
		return
	}

	now := h.now()
	views := make([]pollView, 0, len(aggs))

	// Private polls the caller cannot see are filtered out silently, not
	// reported as errors.
	for _, agg := range aggs {
		if !agg.CanView(callerID) {
			continue
		}

		views = append(views, buildPollView(agg, callerID, now))
	}

	h.cache.Set(listCacheKey(callerID), views)

	ctx.JSON(http.StatusOK, gin.H{
		"items": views,
		"count": len(views),
	})
}

func (h *PollsHandler) GetPollById(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	id := ctx.Param("id")

	agg, err := h.polls.GetAggregate(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not fetch poll")
		return
	}

	// A private poll the caller cannot see looks exactly like a missing one,
	// so poll ids cannot be probed.
	if !agg.CanView(callerID) {
		RespondNotFound(ctx, "Poll not found")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, buildPollView(agg, callerID, h.now()))
}

func (h *PollsHandler) CreatePoll(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)
	if role != user.RoleAdmin {
		RespondForbidden(ctx, "Only administrators can create polls.")
		return
	}

	var req poll.CreatePollRequest

	if !BindJSON(ctx, &req) {
		return
	}

	now := h.now()

	p, err := poll.NewFromCreateRequest(req, callerID, now)

	if err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	p.ID = uuid.NewString()

	cctx := ctx.Request.Context()

	if len(req.AllowedUserIDs) > 0 {
		count, err := h.users.CountByIDs(cctx, req.AllowedUserIDs)

		if err != nil {
			RespondInternal(ctx, "Could not create poll")
			return
		}

		if count != len(dedupe(req.AllowedUserIDs)) {
			RespondBadRequest(ctx, "allowedUserIds contains unknown users", nil)
			return
		}
	}

	err = h.polls.Create(cctx, p, dedupe(req.AllowedUserIDs))

	if err != nil {
		RespondInternal(ctx, "Could not create poll")
		return
	}

	h.cache.Clear()

	agg := poll.Aggregate{Poll: p, AllowedUserIDs: dedupe(req.AllowedUserIDs)}

	ctx.JSON(http.StatusCreated, buildPollView(agg, callerID, now))
}

func (h *PollsHandler) UpdatePoll(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	var req poll.UpdatePollRequest

	if !BindJSON(ctx, &req) {
		return
	}

	id := ctx.Param("id")
	cctx := ctx.Request.Context()

	agg, err := h.polls.GetAggregate(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not update poll")
		return
	}

	// Ownership checks answer 403, never 404: anyone who can address the
	// poll for mutation already proved they know it exists.
	if agg.CreatedByID != callerID {
		RespondForbidden(ctx, "Only the poll creator can update it.")
		return
	}

	now := h.now()

	patched, err := agg.Poll.ApplyPatch(req, now)

	if err != nil {
		if errors.Is(err, poll.ErrClosed) {
			RespondBadRequest(ctx, "Poll is closed and can no longer be updated.", nil)
			return
		}
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	updated, err := h.polls.Update(cctx, patched)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not update poll")
		return
	}

	h.cache.Clear()

	agg.Poll = updated

	ctx.JSON(http.StatusOK, buildPollView(agg, callerID, now))
}

func (h *PollsHandler) DeletePoll(ctx *gin.Context) {
	callerID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	id := ctx.Param("id")
	cctx := ctx.Request.Context()

	agg, err := h.polls.GetAggregate(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not delete poll")
		return
	}

	if agg.CreatedByID != callerID {
		RespondForbidden(ctx, "Only the poll creator can delete it.")
		return
	}

	err = h.polls.Delete(cctx, id)

	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			RespondNotFound(ctx, "Poll not found")
			return
		}
		RespondInternal(ctx, "Could not delete poll")
		return
	}

	h.cache.Clear()

	ctx.Status(http.StatusNoContent)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
