// Package deeplink keeps the client's navigable URL. The active poll is the
// "poll" query parameter, so a link can be shared and a restart resumes the
// join flow from the persisted URL.
package deeplink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/dmitrijs2005/livepoll/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

var ErrNoPollInLink = errors.New("link has no poll id")

// Store is the subset of the metadata repository Location persists to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type Location struct {
	base  *url.URL
	store Store

	mu      sync.Mutex
	current *url.URL
}

// New returns a Location rooted at shareBase (e.g. "https://polls.example/").
func New(shareBase string, store Store) (*Location, error) {
	u, err := url.Parse(shareBase)
	if err != nil {
		return nil, fmt.Errorf("invalid share url %q: %w", shareBase, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid share url %q: absolute url required", shareBase)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Location{base: u, store: store, current: cloneURL(u)}, nil
}

func cloneURL(u *url.URL) *url.URL {
	cp := *u
	return &cp
}

// Load restores the persisted URL. A missing or unparsable value leaves the
// base URL in place.
func (l *Location) Load(ctx context.Context) error {
	raw, ok, err := l.store.Get(ctx, metadata.KeyLocation)
	if err != nil {
		return fmt.Errorf("load location: %w", err)
	}
	if !ok {
		return nil
	}
	u, err := url.Parse(string(raw))
	if err != nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = u
	return nil
}

// URL returns the current navigable URL.
func (l *Location) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.String()
}

// PollID returns the poll id carried by the current URL, or "".
func (l *Location) PollID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Query().Get(common.PollQueryParam)
}

// SetPoll puts pollID into the URL and persists it.
func (l *Location) SetPoll(ctx context.Context, pollID string) error {
	l.mu.Lock()
	u := cloneURL(l.current)
	q := u.Query()
	q.Set(common.PollQueryParam, pollID)
	u.RawQuery = q.Encode()
	l.current = u
	l.mu.Unlock()

	if err := l.store.Set(ctx, metadata.KeyLocation, []byte(u.String())); err != nil {
		return fmt.Errorf("save location: %w", err)
	}
	return nil
}

// ClearPoll removes the poll parameter and the persisted URL.
func (l *Location) ClearPoll(ctx context.Context) error {
	l.Reset()
	if err := l.store.Delete(ctx, metadata.KeyLocation); err != nil {
		return fmt.Errorf("clear location: %w", err)
	}
	return nil
}

// Reset drops the poll parameter in memory only.
func (l *Location) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := cloneURL(l.current)
	q := u.Query()
	q.Del(common.PollQueryParam)
	u.RawQuery = q.Encode()
	l.current = u
}

// ShareLink builds the shareable link for pollID.
func (l *Location) ShareLink(pollID string) string {
	u := cloneURL(l.base)
	q := url.Values{}
	q.Set(common.PollQueryParam, pollID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ParsePollRef accepts a bare poll id (share code) or a link carrying the
// poll query parameter.
func ParsePollRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", common.NewValidationError("poll", "please enter a poll id or link")
	}
	if !strings.Contains(ref, "://") && !strings.ContainsAny(ref, "?=/") {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", common.NewValidationError("poll", "not a valid link")
	}
	id := u.Query().Get(common.PollQueryParam)
	if id == "" {
		return "", ErrNoPollInLink
	}
	return id, nil
}
