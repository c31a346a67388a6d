package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/pollhub/internal/cache"
	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/domain/vote"
	"github.com/geocoder89/pollhub/internal/http/handlers"
	"github.com/geocoder89/pollhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type fakeVoteStore struct {
	insertFn func(ctx context.Context, v vote.Vote) error
	listFn   func(ctx context.Context, userID string) ([]vote.UserVote, error)
}

func (f *fakeVoteStore) InsertIfAbsent(ctx context.Context, v vote.Vote) error {
	return f.insertFn(ctx, v)
}

func (f *fakeVoteStore) ListByUser(ctx context.Context, userID string) ([]vote.UserVote, error) {
	return f.listFn(ctx, userID)
}

type fakePollReader struct {
	getFn func(ctx context.Context, id string) (poll.Aggregate, error)
}

func (f *fakePollReader) GetAggregate(ctx context.Context, id string) (poll.Aggregate, error) {
	return f.getFn(ctx, id)
}

func newVotesRouter(t *testing.T, h *handlers.VotesHandler, callerID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		middlewares.SetIdentity(c, callerID, callerID+"@example.com", user.RoleUser)
		c.Next()
	})

	r.POST("/polls/:id/vote", h.CastVote)
	r.GET("/polls/my-votes", h.MyVotes)

	return r
}

func castVote(t *testing.T, r *gin.Engine, pollID, option string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls/"+pollID+"/vote",
		bytes.NewBufferString(`{"selectedOption":"`+option+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	return w
}

func TestCastVote_Accepted(t *testing.T) {
	agg := openPoll("p1", "owner", poll.VisibilityPublic)

	var inserted vote.Vote
	votes := &fakeVoteStore{
		insertFn: func(ctx context.Context, v vote.Vote) error {
			inserted = v
			return nil
		},
	}
	polls := &fakePollReader{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
	}

	h := handlers.NewVotesHandler(votes, polls, cache.New(time.Minute), nil)
	r := newVotesRouter(t, h, "voter-1")

	w := castVote(t, r, "p1", "Pizza")

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", w.Code, w.Body.String())
	}
	if inserted.PollID != "p1" || inserted.UserID != "voter-1" || inserted.SelectedOption != "Pizza" {
		t.Fatalf("wrong vote reached the ledger: %+v", inserted)
	}
	if inserted.ID == "" {
		t.Fatal("vote id not generated")
	}
}

func TestCastVote_DuplicateAnswersConflict(t *testing.T) {
	agg := openPoll("p1", "owner", poll.VisibilityPublic)

	votes := &fakeVoteStore{
		insertFn: func(ctx context.Context, v vote.Vote) error {
			return vote.ErrDuplicate
		},
	}
	polls := &fakePollReader{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
	}

	h := handlers.NewVotesHandler(votes, polls, cache.New(time.Minute), nil)
	r := newVotesRouter(t, h, "voter-1")

	w := castVote(t, r, "p1", "Pizza")

	if w.Code != http.StatusConflict {
		t.Fatalf("got %d, want 409: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "already_voted" {
		t.Fatalf("code: got %q", resp.Error.Code)
	}
}

func TestCastVote_ClosedPoll(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*poll.Aggregate)
	}{
		{
			name: "time expired",
			mutate: func(a *poll.Aggregate) {
				a.ExpiresAt = time.Now().UTC().Add(-time.Minute)
			},
		},
		{
			name: "deactivated",
			mutate: func(a *poll.Aggregate) {
				a.IsActive = false
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agg := openPoll("p1", "owner", poll.VisibilityPublic)
			tc.mutate(&agg)

			votes := &fakeVoteStore{
				insertFn: func(ctx context.Context, v vote.Vote) error {
					t.Fatal("insert must not be reached")
					return nil
				},
			}
			polls := &fakePollReader{
				getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
					return agg, nil
				},
			}

			h := handlers.NewVotesHandler(votes, polls, cache.New(time.Minute), nil)
			r := newVotesRouter(t, h, "voter-1")

			w := castVote(t, r, "p1", "Pizza")

			if w.Code != http.StatusBadRequest {
				t.Fatalf("got %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCastVote_InvalidOption(t *testing.T) {
	agg := openPoll("p1", "owner", poll.VisibilityPublic)

	votes := &fakeVoteStore{
		insertFn: func(ctx context.Context, v vote.Vote) error {
			t.Fatal("insert must not be reached")
			return nil
		},
	}
	polls := &fakePollReader{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
	}

	h := handlers.NewVotesHandler(votes, polls, cache.New(time.Minute), nil)
	r := newVotesRouter(t, h, "voter-1")

	// case matters: "pizza" is not an option of this poll
	w := castVote(t, r, "p1", "pizza")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestCastVote_UnviewablePollLooksLikeMissing(t *testing.T) {
	agg := openPoll("p1", "owner", poll.VisibilityPrivate)

	votes := &fakeVoteStore{
		insertFn: func(ctx context.Context, v vote.Vote) error {
			t.Fatal("insert must not be reached")
			return nil
		},
	}
	polls := &fakePollReader{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
	}

	h := handlers.NewVotesHandler(votes, polls, cache.New(time.Minute), nil)
	r := newVotesRouter(t, h, "stranger")

	w := castVote(t, r, "p1", "Pizza")

	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404: %s", w.Code, w.Body.String())
	}
}

func TestMyVotes(t *testing.T) {
	votes := &fakeVoteStore{
		listFn: func(ctx context.Context, userID string) ([]vote.UserVote, error) {
			if userID != "voter-1" {
				t.Fatalf("listed for %q", userID)
			}
			return []vote.UserVote{
				{
					Vote: vote.Vote{ID: "v1", PollID: "p1", UserID: userID, SelectedOption: "Pizza"},
					Poll: vote.PollSummary{ID: "p1", Title: "Lunch spot", Description: "Where to?"},
				},
			}, nil
		},
	}

	h := handlers.NewVotesHandler(votes, nil, cache.New(time.Minute), nil)
	r := newVotesRouter(t, h, "voter-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/polls/my-votes", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []struct {
			SelectedOption string `json:"selectedOption"`
			Poll           struct {
				Title string `json:"title"`
			} `json:"poll"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 1 || len(resp.Items) != 1 {
		t.Fatalf("unexpected payload: %s", w.Body.String())
	}
	if resp.Items[0].SelectedOption != "Pizza" || resp.Items[0].Poll.Title != "Lunch spot" {
		t.Fatalf("unexpected item: %s", w.Body.String())
	}
}
