// Package services contains application services for the livepoll client.
// This file defines the session service: register, login, restore of the
// persisted identity at start, and logout housekeeping.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/client/repositories/ledger"
	"github.com/dmitrijs2005/livepoll/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/livepoll/internal/common"
	"github.com/dmitrijs2005/livepoll/internal/dbx"
)

// AuthAPI is the part of the API gateway the session needs.
type AuthAPI interface {
	SetToken(token string)
	Register(ctx context.Context, req models.RegisterRequest) error
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}

// SessionService owns the client's identity.
//
// Contract:
//   - Register: validate input locally, then create the account on the server.
//   - Authenticate: log in on the server and persist the returned identity.
//   - Login: persist an identity obtained elsewhere. Fails only on storage errors.
//   - Restore: read the persisted identity; no server round trip.
//   - Logout: remove the identity, the user's vote ledger and the saved
//     location in one transaction.
//   - Current / Token / TokenExpiry: in-memory reads.
type SessionService interface {
	Register(ctx context.Context, username, email, password, confirm string) error
	Authenticate(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, token string) error
	Restore(ctx context.Context) (string, bool, error)
	Logout(ctx context.Context) error
	Current() (string, bool)
	Token() string
	TokenExpiry() (time.Time, bool)
}

type sessionService struct {
	api AuthAPI
	db  *sql.DB

	mu       sync.RWMutex
	username string
	token    string
}

func NewSessionService(api AuthAPI, db *sql.DB) SessionService {
	return &sessionService{api: api, db: db}
}

func (s *sessionService) Register(ctx context.Context, username, email, password, confirm string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return common.NewValidationError("username", "please enter a username")
	case email == "":
		return common.NewValidationError("email", "please enter an email address")
	case password == "":
		return common.NewValidationError("password", "please enter a password")
	case password != confirm:
		return common.NewValidationError("password", "passwords do not match")
	}

	req := models.RegisterRequest{Username: username, Email: email, Password: password}
	if err := s.api.Register(ctx, req); err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return nil
}

func (s *sessionService) Authenticate(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", common.NewValidationError("username", "please enter your username")
	}
	if password == "" {
		return "", common.NewValidationError("password", "please enter your password")
	}

	resp, err := s.api.Login(ctx, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("login error: %w", err)
	}
	if err := s.Login(ctx, resp.Username, resp.Token); err != nil {
		return "", err
	}
	return resp.Username, nil
}

func (s *sessionService) Login(ctx context.Context, username, token string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyToken, []byte(token))
	})
	if err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}

	s.mu.Lock()
	s.username, s.token = username, token
	s.mu.Unlock()
	s.api.SetToken(token)
	return nil
}

func (s *sessionService) Restore(ctx context.Context) (string, bool, error) {
	repo := metadata.NewSQLiteRepository(s.db)

	username, ok, err := repo.Get(ctx, metadata.KeyUsername)
	if err != nil {
		return "", false, fmt.Errorf("session restore error: %w", err)
	}
	if !ok || len(username) == 0 {
		return "", false, nil
	}
	token, _, err := repo.Get(ctx, metadata.KeyToken)
	if err != nil {
		return "", false, fmt.Errorf("session restore error: %w", err)
	}

	s.mu.Lock()
	s.username, s.token = string(username), string(token)
	s.mu.Unlock()
	s.api.SetToken(string(token))
	return string(username), true, nil
}

func (s *sessionService) Logout(ctx context.Context) error {
	s.mu.RLock()
	username := s.username
	s.mu.RUnlock()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := metadata.NewSQLiteRepository(tx).Delete(ctx,
			metadata.KeyUsername, metadata.KeyToken, metadata.KeyLocation); err != nil {
			return err
		}
		if username == "" {
			return nil
		}
		return ledger.NewSQLiteRepository(tx).DeleteUser(ctx, username)
	})
	if err != nil {
		return fmt.Errorf("logout error: %w", err)
	}

	s.mu.Lock()
	s.username, s.token = "", ""
	s.mu.Unlock()
	s.api.SetToken("")
	return nil
}

func (s *sessionService) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username, s.username != ""
}

func (s *sessionService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// TokenExpiry reads the exp claim without verifying the signature; the
// server remains the authority on validity.
func (s *sessionService) TokenExpiry() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
