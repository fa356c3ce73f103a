package api

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

// StatusError is returned when the server answered with a status >= 400.
type StatusError struct {
	Code    int
	Message string
}

func newStatusError(code int, body []byte) *StatusError {
	msg := ""
	if len(body) > 0 {
		var eb models.ErrorBody
		if err := json.Unmarshal(body, &eb); err == nil {
			msg = eb.Error
			if msg == "" {
				msg = eb.Message
			}
		}
	}
	if msg == "" {
		msg = genericMessage(code)
	}
	return &StatusError{Code: code, Message: msg}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Code)
}

func (e *StatusError) Unwrap() error {
	return sentinelFor(e.Code)
}

func sentinelFor(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case code == http.StatusForbidden:
		return common.ErrForbidden
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusConflict:
		return common.ErrConflict
	case code == http.StatusTooManyRequests:
		return common.ErrRateLimited
	case code >= http.StatusInternalServerError:
		return common.ErrServer
	default:
		return common.ErrBadRequest
	}
}

func genericMessage(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "authentication required, please log in"
	case code == http.StatusForbidden:
		return "you do not have permission to do that"
	case code == http.StatusNotFound:
		return "not found"
	case code == http.StatusConflict:
		return "request conflicts with the current state"
	case code == http.StatusTooManyRequests:
		return "too many requests, please wait and try again"
	case code >= http.StatusInternalServerError:
		return "server error, please try again later"
	default:
		return fmt.Sprintf("request failed: %s", http.StatusText(code))
	}
}

// TransientError is returned when no response was received after all
// attempts. It matches common.ErrUnavailable and the last underlying cause.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempt(s): %v", e.Op, common.ErrUnavailable, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{common.ErrUnavailable, e.Err}
}
