package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/livepoll/internal/common"
	"github.com/dmitrijs2005/livepoll/internal/logging"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 1 * time.Second
	DefaultMultiplier      = 1.5
)

type HTTPClient struct {
	baseURL         string
	http            *http.Client
	timeout         time.Duration
	maxAttempts     int
	initialInterval time.Duration
	multiplier      float64
	log             logging.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*HTTPClient)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithRetry sets the attempt budget and the backoff between attempts.
func WithRetry(maxAttempts int, initial time.Duration, multiplier float64) Option {
	return func(c *HTTPClient) {
		c.maxAttempts = maxAttempts
		c.initialInterval = initial
		c.multiplier = multiplier
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}

	c := &HTTPClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            &http.Client{},
		timeout:         DefaultTimeout,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: DefaultInitialInterval,
		multiplier:      DefaultMultiplier,
		log:             logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c, nil
}

func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *HTTPClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// call describes one logical API request. It may be sent several times.
type call struct {
	op             string
	method         string
	path           string
	body           any
	out            any
	idempotencyKey string
}

func (c *HTTPClient) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Multiplier = c.multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
}

// do sends cl, retrying transient failures.
func (c *HTTPClient) do(ctx context.Context, cl call) error {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return fmt.Errorf("%s: encode request: %w", cl.op, err)
		}
	}

	requestID := uuid.NewString()
	attempts := 0

	op := func() error {
		attempts++
		err := c.attempt(ctx, cl, payload, requestID)
		if err == nil {
			return nil
		}
		var te *transientFailure
		if errors.As(err, &te) && ctx.Err() == nil {
			c.log.Warn(ctx, "api request failed, will retry",
				"op", cl.op, "attempt", attempts, "max_attempts", c.maxAttempts, "error", te.err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, c.newBackOff(ctx))
	if err == nil {
		return nil
	}

	var te *transientFailure
	if errors.As(err, &te) {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", cl.op, ctx.Err())
		}
		c.log.Error(ctx, "api request gave up", "op", cl.op, "attempts", attempts, "error", te.err)
		return &TransientError{Op: cl.op, Attempts: attempts, Err: te.err}
	}
	return err
}

// transientFailure marks an attempt that got no response, so the request
// may not have reached the server.
type transientFailure struct {
	err error
}

func (t *transientFailure) Error() string { return t.err.Error() }

func (c *HTTPClient) attempt(ctx context.Context, cl call, payload []byte, requestID string) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.RequestIDHeaderName, requestID)
	if cl.idempotencyKey != "" {
		req.Header.Set(common.IdempotencyKeyHeaderName, cl.idempotencyKey)
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transientFailure{err: err}
	}
	defer resp.Body.Close()

	// The server has seen the request from here on; nothing below retries.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", cl.op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return newStatusError(resp.StatusCode, data)
	}

	if cl.out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, cl.out); err != nil {
		return fmt.Errorf("%s: decode response: %w", cl.op, err)
	}
	return nil
}

func pollPath(pollID string, suffix ...string) string {
	p := "/polls/" + url.PathEscape(pollID)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
