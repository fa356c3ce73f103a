package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/common"
)

// MinOptions is the smallest number of options a poll may be created with.
const MinOptions = 2

// PollDraft is the body of POST /polls.
type PollDraft struct {
	Question    string     `json:"question"`
	Options     []string   `json:"options"`
	CreatedBy   string     `json:"createdBy"`
	StartAt     *time.Time `json:"startAt,omitempty"`
	ActiveUntil *time.Time `json:"activeUntil,omitempty"`
}

// Normalize trims the question and options and drops blank options.
func (d PollDraft) Normalize() PollDraft {
	out := d
	out.Question = strings.TrimSpace(d.Question)
	out.Options = make([]string, 0, len(d.Options))
	for _, o := range d.Options {
		if o = strings.TrimSpace(o); o != "" {
			out.Options = append(out.Options, o)
		}
	}
	return out
}

// Validate checks a normalized draft against now.
func (d PollDraft) Validate(now time.Time) error {
	if d.Question == "" {
		return common.NewValidationError("question", "please enter a question")
	}
	if len(d.Options) < MinOptions {
		return common.NewValidationError("options", "please provide at least 2 options")
	}
	return Schedule{StartAt: d.StartAt, ActiveUntil: d.ActiveUntil}.Validate(now)
}

// Schedule is the body of PUT /polls/{id}/timing.
type Schedule struct {
	StartAt     *time.Time `json:"startAt,omitempty"`
	ActiveUntil *time.Time `json:"activeUntil,omitempty"`
}

// Validate rejects a start in the past and an end not after the start (or
// not after now when there is no start).
func (s Schedule) Validate(now time.Time) error {
	if s.StartAt != nil && s.StartAt.Before(now) {
		return common.NewValidationError("startAt", "start time is in the past")
	}
	if s.ActiveUntil != nil {
		from := now
		if s.StartAt != nil {
			from = *s.StartAt
		}
		if !s.ActiveUntil.After(from) {
			return common.NewValidationError("activeUntil", "end time must be after the start time")
		}
	}
	return nil
}

// VoteRequest is the body of POST /polls/{id}/vote. Username is advisory;
// the server decides attribution.
type VoteRequest struct {
	OptionID string `json:"optionId"`
	Username string `json:"username"`
}

// VoteResponse carries the tally after the vote was applied.
type VoteResponse struct {
	Results []Option `json:"results"`
}

// ToggleResponse is returned by PUT /polls/{id}/toggle-active.
type ToggleResponse struct {
	IsActive bool `json:"isActive"`
}

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /users/login.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// ErrorBody is the error payload the API returns with non-2xx statuses.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
