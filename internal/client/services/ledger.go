package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/client/repositories/ledger"
)

// VoteLedger answers "has this user voted on this poll from this client".
// Records are written once and only removed by logout.
type VoteLedger interface {
	HasVoted(ctx context.Context, username, pollID string) (bool, error)
	MarkVoted(ctx context.Context, username, pollID string) error
	Voted(ctx context.Context, username string) ([]string, error)
}

type voteLedger struct {
	repo ledger.Repository
	now  func() time.Time
}

func NewVoteLedger(db *sql.DB) VoteLedger {
	return &voteLedger{repo: ledger.NewSQLiteRepository(db), now: time.Now}
}

func (l *voteLedger) HasVoted(ctx context.Context, username, pollID string) (bool, error) {
	if username == "" || pollID == "" {
		return false, nil
	}
	ok, err := l.repo.Has(ctx, username, pollID)
	if err != nil {
		return false, fmt.Errorf("ledger lookup error: %w", err)
	}
	return ok, nil
}

func (l *voteLedger) MarkVoted(ctx context.Context, username, pollID string) error {
	err := l.repo.Put(ctx, ledger.Record{Username: username, PollID: pollID, VotedAt: l.now()})
	if err != nil {
		return fmt.Errorf("ledger write error: %w", err)
	}
	return nil
}

// Voted lists the poll ids username voted on, oldest first.
func (l *voteLedger) Voted(ctx context.Context, username string) ([]string, error) {
	recs, err := l.repo.ListByUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ledger list error: %w", err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.PollID)
	}
	return ids, nil
}
