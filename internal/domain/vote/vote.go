package vote

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Vote struct {
	ID             string    `json:"id"`
	PollID         string    `json:"pollId"`
	UserID         string    `json:"userId"`
	SelectedOption string    `json:"selectedOption"`
	CreatedAt      time.Time `json:"createdAt"`
}

var (
	// returned when a (userID, pollID) pair already holds a vote
	ErrDuplicate = errors.New("vote already cast for this poll")

	ErrNotFound      = errors.New("vote not found")
	ErrInvalidOption = errors.New("selected option is not one of the poll's options")
)

type CastVoteRequest struct {
	SelectedOption string `json:"selectedOption" binding:"required,min=1,max=500"`
}

func New(pollID, userID, selectedOption string, now time.Time) Vote {
	return Vote{
		ID:             uuid.NewString(),
		PollID:         pollID,
		UserID:         userID,
		SelectedOption: selectedOption,
		CreatedAt:      now,
	}
}

// PollSummary carries just enough of the voted-on poll for the my-votes view.
type PollSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type UserVote struct {
	Vote
	Poll PollSummary `json:"poll"`
}
