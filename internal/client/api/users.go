package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
)

func (c *HTTPClient) Register(ctx context.Context, req models.RegisterRequest) error {
	return c.do(ctx, call{op: "register", method: http.MethodPost, path: "/users/register", body: req})
}

// Login does not store the returned token; the session owns it.
func (c *HTTPClient) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, call{op: "login", method: http.MethodPost, path: "/users/login", body: req, out: &resp})
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login: response has no token")
	}
	if resp.Username == "" {
		resp.Username = req.Username
	}
	return &resp, nil
}
