// Package models holds the client-side view of polls, results and the
// request/response shapes exchanged with the poll API.
package models

import (
	"time"
)

// Option is one choice of a poll. ID is unique within its poll.
type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int64  `json:"votes"`
}

// Poll is the server's poll definition. The client never edits it; only the
// locally observed ResultSnapshot changes.
type Poll struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Options     []Option   `json:"options"`
	Results     []Option   `json:"results,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	IsActive    bool       `json:"isActive"`
	StartAt     *time.Time `json:"startAt,omitempty"`
	ActiveUntil *time.Time `json:"activeUntil,omitempty"`
}

// HasOption reports whether optionID belongs to the poll's option set.
func (p *Poll) HasOption(optionID string) bool {
	for _, o := range p.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// InitialResults returns the results embedded in the poll payload, falling
// back to the per-option vote counts when the server sent no results list.
func (p *Poll) InitialResults() []Option {
	src := p.Results
	if len(src) == 0 {
		src = p.Options
	}
	out := make([]Option, len(src))
	copy(out, src)
	return out
}

// OpenAt reports whether the poll accepts votes at now: it must be active
// and inside its optional [StartAt, ActiveUntil) window.
func (p *Poll) OpenAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartAt != nil && now.Before(*p.StartAt) {
		return false
	}
	if p.ActiveUntil != nil && !now.Before(*p.ActiveUntil) {
		return false
	}
	return true
}

// TotalVotes sums the per-option counts embedded in the poll.
func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, o := range p.InitialResults() {
		total += o.Votes
	}
	return total
}
