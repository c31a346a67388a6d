package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

// handlers read the wall clock, so fixtures anchor on it too
var testNow = time.Now().UTC().Truncate(time.Second)

type fakePollStore struct {
	createFn func(ctx context.Context, p poll.Poll, allowedUserIDs []string) error
	getFn    func(ctx context.Context, id string) (poll.Aggregate, error)
	listFn   func(ctx context.Context) ([]poll.Aggregate, error)
	updateFn func(ctx context.Context, p poll.Poll) (poll.Poll, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakePollStore) Create(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
	return f.createFn(ctx, p, allowedUserIDs)
}

func (f *fakePollStore) GetAggregate(ctx context.Context, id string) (poll.Aggregate, error) {
	return f.getFn(ctx, id)
}

func (f *fakePollStore) ListAggregates(ctx context.Context) ([]poll.Aggregate, error) {
	return f.listFn(ctx)
}

func (f *fakePollStore) Update(ctx context.Context, p poll.Poll) (poll.Poll, error) {
	return f.updateFn(ctx, p)
}

func (f *fakePollStore) Delete(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}

type fakeUserCounter struct {
	countFn func(ctx context.Context, ids []string) (int, error)
}

func (f *fakeUserCounter) CountByIDs(ctx context.Context, ids []string) (int, error) {
	return f.countFn(ctx, ids)
}

func openPoll(id, creatorID string, visibility poll.Visibility) poll.Aggregate {
	return poll.Aggregate{
		Poll: poll.Poll{
			ID:          id,
			Title:       "Lunch spot",
			Description: "Where to?",
			Options:     []string{"Pizza", "Sushi"},
			Visibility:  visibility,
			ExpiresAt:   testNow.Add(time.Hour),
			IsActive:    true,
			CreatedByID: creatorID,
			CreatedAt:   testNow,
			UpdatedAt:   testNow,
		},
	}
}

func newPollsRouter(t *testing.T, h *handlers.PollsHandler, callerID, role string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		middlewares.SetIdentity(c, callerID, callerID+"@example.com", role)
		c.Next()
	})

	r.GET("/polls", h.ListPolls)
	r.POST("/polls", h.CreatePoll)
	r.GET("/polls/:id", h.GetPollById)
	r.PATCH("/polls/:id", h.UpdatePoll)
	r.DELETE("/polls/:id", h.DeletePoll)

	return r
}

func TestListPolls_FiltersUnviewablePrivatePolls(t *testing.T) {
	mine := openPoll("p1", "caller", poll.VisibilityPrivate)
	public := openPoll("p2", "someone", poll.VisibilityPublic)
	hidden := openPoll("p3", "someone", poll.VisibilityPrivate)

	store := &fakePollStore{
		listFn: func(ctx context.Context) ([]poll.Aggregate, error) {
			return []poll.Aggregate{mine, public, hidden}, nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/polls", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Count != 2 {
		t.Fatalf("got %d polls, want 2: %s", resp.Count, w.Body.String())
	}
	for _, item := range resp.Items {
		if item.ID == "p3" {
			t.Fatal("unviewable private poll leaked into the list")
		}
	}
}

func TestGetPoll_UnviewableLooksLikeMissing(t *testing.T) {
	hidden := openPoll("p1", "someone", poll.VisibilityPrivate)

	store := &fakePollStore{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			if id == "p1" {
				return hidden, nil
			}
			return poll.Aggregate{}, poll.ErrNotFound
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	for _, id := range []string{"p1", "missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/polls/"+id, nil))

		if w.Code != http.StatusNotFound {
			t.Fatalf("GET /polls/%s: got %d, want 404", id, w.Code)
		}
	}
}

func TestGetPoll_DecoratesPayload(t *testing.T) {
	agg := openPoll("p1", "caller", poll.VisibilityPublic)
	agg.AllowedUserIDs = []string{"friend"}
	agg.Votes = votesFor(t, "p1", "Pizza", "Pizza", "Sushi")

	store := &fakePollStore{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/polls/p1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatal("expected an ETag header")
	}

	var resp struct {
		IsExpired      bool     `json:"isExpired"`
		CanVote        bool     `json:"canVote"`
		TotalVotes     int      `json:"totalVotes"`
		AllowedUserIDs []string `json:"allowedUserIds"`
		Results        []struct {
			Option     string  `json:"option"`
			Votes      int     `json:"votes"`
			Percentage float64 `json:"percentage"`
		} `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.IsExpired {
		t.Fatal("open poll reported expired")
	}
	if !resp.CanVote {
		t.Fatal("caller should be able to vote")
	}
	if resp.TotalVotes != 3 {
		t.Fatalf("totalVotes: got %d, want 3", resp.TotalVotes)
	}
	if len(resp.AllowedUserIDs) != 1 {
		t.Fatalf("owner should see the allow-list: %+v", resp.AllowedUserIDs)
	}
	if len(resp.Results) != 2 || resp.Results[0].Votes != 2 || resp.Results[0].Percentage != 66.67 {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func votesFor(t *testing.T, pollID string, options ...string) []vote.Vote {
	t.Helper()
	votes := make([]vote.Vote, 0, len(options))
	for i, opt := range options {
		votes = append(votes, vote.Vote{
			ID:             fmt.Sprintf("v%d", i),
			PollID:         pollID,
			UserID:         fmt.Sprintf("u%d", i),
			SelectedOption: opt,
		})
	}
	return votes
}

func TestCreatePoll_RequiresAdmin(t *testing.T) {
	store := &fakePollStore{
		createFn: func(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
			t.Fatal("create must not be reached")
			return nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	body := fmt.Sprintf(`{"title":"T","description":"D","options":["A","B"],"visibility":"public","expiresAt":%q}`,
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestCreatePoll_AdminSuccess(t *testing.T) {
	var created poll.Poll

	store := &fakePollStore{
		createFn: func(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
			created = p
			return nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "admin-1", user.RoleAdmin)

	body := fmt.Sprintf(`{"title":"T","description":"D","options":["A","B"],"visibility":"public","expiresAt":%q}`,
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", w.Code, w.Body.String())
	}
	if created.ID == "" {
		t.Fatal("poll never reached the store")
	}
	if created.CreatedByID != "admin-1" {
		t.Fatalf("creator: got %q", created.CreatedByID)
	}
	if !created.IsActive {
		t.Fatal("new poll must start active")
	}
}

func TestCreatePoll_RejectsExpiryPastCap(t *testing.T) {
	store := &fakePollStore{
		createFn: func(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
			t.Fatal("create must not be reached")
			return nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "admin-1", user.RoleAdmin)

	body := fmt.Sprintf(`{"title":"T","description":"D","options":["A","B"],"visibility":"public","expiresAt":%q}`,
		time.Now().UTC().Add(3*time.Hour).Format(time.RFC3339))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestCreatePoll_RejectsUnknownAllowedUsers(t *testing.T) {
	store := &fakePollStore{
		createFn: func(ctx context.Context, p poll.Poll, allowedUserIDs []string) error {
			t.Fatal("create must not be reached")
			return nil
		},
	}
	counter := &fakeUserCounter{
		countFn: func(ctx context.Context, ids []string) (int, error) {
			return 0, nil
		},
	}

	h := handlers.NewPollsHandler(store, counter, cache.New(time.Minute))
	r := newPollsRouter(t, h, "admin-1", user.RoleAdmin)

	body := fmt.Sprintf(`{"title":"T","description":"D","options":["A","B"],"visibility":"private","expiresAt":%q,"allowedUserIds":["550e8400-e29b-41d4-a716-446655440000"]}`,
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestUpdatePoll_NonOwnerGetsForbidden(t *testing.T) {
	agg := openPoll("p1", "owner", poll.VisibilityPublic)

	store := &fakePollStore{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
		updateFn: func(ctx context.Context, p poll.Poll) (poll.Poll, error) {
			t.Fatal("update must not be reached")
			return poll.Poll{}, nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/polls/p1", bytes.NewBufferString(`{"title":"New"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	// Mutations by non-owners answer 403, unlike reads, which hide the poll.
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestUpdatePoll_ExpiredPollIsImmutable(t *testing.T) {
	agg := openPoll("p1", "caller", poll.VisibilityPublic)
	agg.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	store := &fakePollStore{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
		updateFn: func(ctx context.Context, p poll.Poll) (poll.Poll, error) {
			t.Fatal("update must not be reached")
			return poll.Poll{}, nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))
	r := newPollsRouter(t, h, "caller", user.RoleUser)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/polls/p1", bytes.NewBufferString(`{"isActive":true}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestDeletePoll(t *testing.T) {
	agg := openPoll("p1", "caller", poll.VisibilityPublic)

	deleted := ""
	store := &fakePollStore{
		getFn: func(ctx context.Context, id string) (poll.Aggregate, error) {
			return agg, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}

	h := handlers.NewPollsHandler(store, nil, cache.New(time.Minute))

	// non-owner first
	r := newPollsRouter(t, h, "stranger", user.RoleUser)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/polls/p1", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("non-owner: got %d, want 403", w.Code)
	}
	if deleted != "" {
		t.Fatal("delete reached the store for a non-owner")
	}

	// then the owner
	r = newPollsRouter(t, h, "caller", user.RoleUser)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/polls/p1", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("owner: got %d, want 204: %s", w.Code, w.Body.String())
	}
	if deleted != "p1" {
		t.Fatalf("deleted id: got %q", deleted)
	}
}
