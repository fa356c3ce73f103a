package api

import (
	"context"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
)

// Gateway is the set of poll API operations the client uses.
type Gateway interface {
	// SetToken replaces the bearer token attached to outbound requests.
	// An empty token sends requests unauthenticated.
	SetToken(token string)

	ListPolls(ctx context.Context) ([]models.Poll, error)
	GetPoll(ctx context.Context, pollID string) (*models.Poll, error)
	CreatePoll(ctx context.Context, draft models.PollDraft) (*models.Poll, error)
	SubmitVote(ctx context.Context, pollID string, req models.VoteRequest) (*models.VoteResponse, error)
	GetResults(ctx context.Context, pollID string) ([]models.Option, error)
	DeletePoll(ctx context.Context, pollID string) error
	ToggleActive(ctx context.Context, pollID string) (bool, error)
	UpdateSchedule(ctx context.Context, pollID string, schedule models.Schedule) (*models.Poll, error)

	Register(ctx context.Context, req models.RegisterRequest) error
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}
