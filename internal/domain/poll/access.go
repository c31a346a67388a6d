package poll

import (
	"time"

	"github.com/geocoder89/pollhub/internal/domain/vote"
)

// Aggregate is a poll read together with its allow-list and votes, the unit
// the repositories return for anything access- or results-related.
type Aggregate struct {
	Poll
	AllowedUserIDs []string
	Votes          []vote.Vote
}

// CanView: public polls are visible to any authenticated caller; private
// polls only to their creator and allow-listed users.
func (a Aggregate) CanView(callerID string) bool {
	if a.Visibility == VisibilityPublic {
		return true
	}

	if callerID == a.CreatedByID {
		return true
	}

	for _, id := range a.AllowedUserIDs {
		if id == callerID {
			return true
		}
	}

	return false
}

// CanVote is eligibility only: the caller must be able to view the poll and
// the poll must still be open. Whether the caller already voted is the
// ledger's concern, enforced at insert time.
func (a Aggregate) CanVote(callerID string, now time.Time) bool {
	return a.CanView(callerID) && a.AcceptsVotes(now)
}
