// Package memory holds the in-memory repositories used by tests and local
// dev. They share one Store and enforce the same invariants as the postgres
// implementations, most importantly the one-vote-per-user-per-poll rule
// under concurrent casts.
package memory

import (
	"sync"

	"github.com/geocoder89/pollhub/internal/auth"
	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/domain/vote"
)

// Store is the shared backing state. The per-entity repos all point at the
// same Store so cascades (poll delete removing votes) work like the foreign
// keys do in postgres.
type Store struct {
	mu sync.RWMutex

	polls   map[string]poll.Poll
	allowed map[string][]string // pollID -> allow-listed user ids

	votes   map[string]vote.Vote // pollID+"|"+userID -> vote
	users   map[string]user.User
	refresh map[string]auth.RefreshTokenRow
}

func NewStore() *Store {
	return &Store{
		polls:   make(map[string]poll.Poll),
		allowed: make(map[string][]string),
		votes:   make(map[string]vote.Vote),
		users:   make(map[string]user.User),
		refresh: make(map[string]auth.RefreshTokenRow),
	}
}

func voteKey(pollID, userID string) string {
	return pollID + "|" + userID
}
