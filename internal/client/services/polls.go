package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

// PollAPI is the part of the API gateway poll management needs.
type PollAPI interface {
	CreatePoll(ctx context.Context, draft models.PollDraft) (*models.Poll, error)
	DeletePoll(ctx context.Context, pollID string) error
	ToggleActive(ctx context.Context, pollID string) (bool, error)
	UpdateSchedule(ctx context.Context, pollID string, schedule models.Schedule) (*models.Poll, error)
}

// Identity reports the logged-in username.
type Identity interface {
	Current() (string, bool)
}

// PollService manages polls owned by the current user. Every input is
// validated before any network call.
type PollService interface {
	Create(ctx context.Context, draft models.PollDraft) (*models.Poll, error)
	Delete(ctx context.Context, pollID string) error
	Toggle(ctx context.Context, pollID string) (bool, error)
	Reschedule(ctx context.Context, pollID string, schedule models.Schedule) (*models.Poll, error)
}

type pollService struct {
	api      PollAPI
	identity Identity
	now      func() time.Time
}

func NewPollService(api PollAPI, identity Identity) PollService {
	return &pollService{api: api, identity: identity, now: time.Now}
}

func (s *pollService) Create(ctx context.Context, draft models.PollDraft) (*models.Poll, error) {
	username, ok := s.identity.Current()
	if !ok {
		return nil, common.ErrNotAuthenticated
	}

	d := draft.Normalize()
	d.CreatedBy = username
	if err := d.Validate(s.now()); err != nil {
		return nil, err
	}

	p, err := s.api.CreatePoll(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create poll error: %w", err)
	}
	return p, nil
}

func (s *pollService) Delete(ctx context.Context, pollID string) error {
	if err := s.checkTarget(pollID); err != nil {
		return err
	}
	if err := s.api.DeletePoll(ctx, pollID); err != nil {
		return fmt.Errorf("delete poll error: %w", err)
	}
	return nil
}

func (s *pollService) Toggle(ctx context.Context, pollID string) (bool, error) {
	if err := s.checkTarget(pollID); err != nil {
		return false, err
	}
	active, err := s.api.ToggleActive(ctx, pollID)
	if err != nil {
		return false, fmt.Errorf("toggle poll error: %w", err)
	}
	return active, nil
}

func (s *pollService) Reschedule(ctx context.Context, pollID string, schedule models.Schedule) (*models.Poll, error) {
	if err := s.checkTarget(pollID); err != nil {
		return nil, err
	}
	if err := schedule.Validate(s.now()); err != nil {
		return nil, err
	}
	p, err := s.api.UpdateSchedule(ctx, pollID, schedule)
	if err != nil {
		return nil, fmt.Errorf("update schedule error: %w", err)
	}
	return p, nil
}

func (s *pollService) checkTarget(pollID string) error {
	if _, ok := s.identity.Current(); !ok {
		return common.ErrNotAuthenticated
	}
	if strings.TrimSpace(pollID) == "" {
		return common.NewValidationError("poll", "please enter a poll id")
	}
	return nil
}
