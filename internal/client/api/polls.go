package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
)

func (c *HTTPClient) ListPolls(ctx context.Context) ([]models.Poll, error) {
	var polls []models.Poll
	err := c.do(ctx, call{op: "list polls", method: http.MethodGet, path: "/polls", out: &polls})
	if err != nil {
		return nil, err
	}
	if polls == nil {
		polls = []models.Poll{}
	}
	return polls, nil
}

func (c *HTTPClient) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	var p models.Poll
	if err := c.do(ctx, call{op: "get poll", method: http.MethodGet, path: pollPath(pollID), out: &p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePoll sends one Idempotency-Key for every attempt of this call.
func (c *HTTPClient) CreatePoll(ctx context.Context, draft models.PollDraft) (*models.Poll, error) {
	var p models.Poll
	err := c.do(ctx, call{
		op:             "create poll",
		method:         http.MethodPost,
		path:           "/polls",
		body:           draft,
		out:            &p,
		idempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) SubmitVote(ctx context.Context, pollID string, req models.VoteRequest) (*models.VoteResponse, error) {
	var resp models.VoteResponse
	err := c.do(ctx, call{
		op:             "submit vote",
		method:         http.MethodPost,
		path:           pollPath(pollID, "vote"),
		body:           req,
		out:            &resp,
		idempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// resultsPayload accepts both a bare option list and {"results": [...]}.
type resultsPayload struct {
	results []models.Option
}

func (r *resultsPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &r.results)
	}
	var wrapped models.VoteResponse
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	r.results = wrapped.Results
	return nil
}

func (c *HTTPClient) GetResults(ctx context.Context, pollID string) ([]models.Option, error) {
	var payload resultsPayload
	err := c.do(ctx, call{op: "get results", method: http.MethodGet, path: pollPath(pollID, "results"), out: &payload})
	if err != nil {
		return nil, err
	}
	if payload.results == nil {
		return nil, fmt.Errorf("get results: response has no results")
	}
	return payload.results, nil
}

func (c *HTTPClient) DeletePoll(ctx context.Context, pollID string) error {
	return c.do(ctx, call{op: "delete poll", method: http.MethodDelete, path: pollPath(pollID)})
}

func (c *HTTPClient) ToggleActive(ctx context.Context, pollID string) (bool, error) {
	var resp models.ToggleResponse
	err := c.do(ctx, call{op: "toggle poll", method: http.MethodPut, path: pollPath(pollID, "toggle-active"), out: &resp})
	if err != nil {
		return false, err
	}
	return resp.IsActive, nil
}

func (c *HTTPClient) UpdateSchedule(ctx context.Context, pollID string, schedule models.Schedule) (*models.Poll, error) {
	var p models.Poll
	err := c.do(ctx, call{op: "update schedule", method: http.MethodPut, path: pollPath(pollID, "timing"), body: schedule, out: &p})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
