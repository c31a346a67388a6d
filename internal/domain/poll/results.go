package poll

import (
	"math"

	"github.com/geocoder89/pollhub/internal/domain/vote"
)

type OptionResult struct {
	Option     string  `json:"option"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// ComputeResults tallies votes per option, in the poll's declared option
// order. Percentages are relative to the total number of votes passed in and
// rounded to two decimals; with no votes every percentage is zero. Votes for
// strings that are no longer options are ignored.
func ComputeResults(options []string, votes []vote.Vote) []OptionResult {
	counts := make(map[string]int, len(options))

	for _, opt := range options {
		counts[opt] = 0
	}

	total := len(votes)

	for _, v := range votes {
		if _, ok := counts[v.SelectedOption]; ok {
			counts[v.SelectedOption]++
		}
	}

	results := make([]OptionResult, 0, len(options))

	for _, opt := range options {
		count := counts[opt]

		pct := 0.0
		if total > 0 {
			pct = math.Round(float64(count)/float64(total)*100*100) / 100
		}

		results = append(results, OptionResult{
			Option:     opt,
			Votes:      count,
			Percentage: pct,
		})
	}

	return results
}
