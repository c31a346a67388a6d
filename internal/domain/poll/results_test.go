package poll_test

import (
	"math"
	"testing"

	"github.com/geocoder89/pollhub/internal/domain/poll"
	"github.com/geocoder89/pollhub/internal/domain/vote"
)

func votesFor(options ...string) []vote.Vote {
	votes := make([]vote.Vote, 0, len(options))
	for i, opt := range options {
		votes = append(votes, vote.Vote{
			ID:             string(rune('a' + i)),
			SelectedOption: opt,
		})
	}
	return votes
}

func TestComputeResults(t *testing.T) {
	tests := []struct {
		name     string
		options  []string
		votes    []vote.Vote
		want     map[string]int
		wantPcts map[string]float64
	}{
		{
			name:     "no votes yields all zeros",
			options:  []string{"A", "B"},
			votes:    nil,
			want:     map[string]int{"A": 0, "B": 0},
			wantPcts: map[string]float64{"A": 0, "B": 0},
		},
		{
			name:     "three to one split",
			options:  []string{"A", "B"},
			votes:    votesFor("A", "A", "A", "B"),
			want:     map[string]int{"A": 3, "B": 1},
			wantPcts: map[string]float64{"A": 75, "B": 25},
		},
		{
			name:     "thirds round to two decimals",
			options:  []string{"A", "B", "C"},
			votes:    votesFor("A", "B", "C"),
			want:     map[string]int{"A": 1, "B": 1, "C": 1},
			wantPcts: map[string]float64{"A": 33.33, "B": 33.33, "C": 33.33},
		},
		{
			name:     "votes for removed options are ignored in counts",
			options:  []string{"A", "B"},
			votes:    votesFor("A", "Gone"),
			want:     map[string]int{"A": 1, "B": 0},
			wantPcts: map[string]float64{"A": 50, "B": 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results := poll.ComputeResults(tc.options, tc.votes)

			if len(results) != len(tc.options) {
				t.Fatalf("got %d results, want %d", len(results), len(tc.options))
			}

			for i, res := range results {
				if res.Option != tc.options[i] {
					t.Fatalf("result %d out of declared order: got %q want %q", i, res.Option, tc.options[i])
				}
				if res.Votes != tc.want[res.Option] {
					t.Fatalf("option %q count: got %d want %d", res.Option, res.Votes, tc.want[res.Option])
				}
				if math.Abs(res.Percentage-tc.wantPcts[res.Option]) > 1e-9 {
					t.Fatalf("option %q percentage: got %v want %v", res.Option, res.Percentage, tc.wantPcts[res.Option])
				}
			}
		})
	}
}

func TestComputeResults_PercentagesAreAgainstTotalCast(t *testing.T) {
	// Two of four votes point at an option that no longer exists; the
	// remaining percentages stay relative to all four cast votes.
	results := poll.ComputeResults([]string{"A", "B"}, votesFor("A", "A", "Gone", "Gone"))

	if results[0].Percentage != 50 {
		t.Fatalf("got %v, want 50", results[0].Percentage)
	}
	if results[1].Percentage != 0 {
		t.Fatalf("got %v, want 0", results[1].Percentage)
	}
}
