package models

import (
	"math"
	"time"
)

// ResultSnapshot is the locally observed tally of the active poll. A new
// snapshot always replaces the previous one as a whole.
type ResultSnapshot struct {
	Results   []Option
	UpdatedAt time.Time
}

// NewSnapshot copies results so later mutation of the source slice cannot
// leak into the snapshot.
func NewSnapshot(results []Option, at time.Time) ResultSnapshot {
	cp := make([]Option, len(results))
	copy(cp, results)
	return ResultSnapshot{Results: cp, UpdatedAt: at}
}

// Total returns the sum of all option counts.
func (s ResultSnapshot) Total() int64 {
	var total int64
	for _, r := range s.Results {
		total += r.Votes
	}
	return total
}

// Percentage returns votes as a rounded share of the total, 0 when nobody
// has voted yet.
func (s ResultSnapshot) Percentage(votes int64) int {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}
