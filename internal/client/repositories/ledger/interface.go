// Package ledger persists which polls a user has voted on from this client.
// Rows are keyed by (username, poll_id) so switching accounts never exposes
// another user's records.
package ledger

import (
	"context"
	"time"
)

// Record is one ledger row.
type Record struct {
	Username string
	PollID   string
	VotedAt  time.Time
}

type Repository interface {
	Has(ctx context.Context, username, pollID string) (bool, error)
	// Put is idempotent: an existing row keeps its original VotedAt.
	Put(ctx context.Context, rec Record) error
	ListByUser(ctx context.Context, username string) ([]Record, error)
	DeleteUser(ctx context.Context, username string) error
}
