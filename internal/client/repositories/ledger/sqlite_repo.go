package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Has(ctx context.Context, username, pollID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vote_ledger WHERE username = ? AND poll_id = ?`,
		username, pollID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to read ledger[%s/%s]: %w", username, pollID, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vote_ledger (username, poll_id, voted_at) VALUES (?, ?, ?)
		ON CONFLICT(username, poll_id) DO NOTHING
	`, rec.Username, rec.PollID, rec.VotedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write ledger[%s/%s]: %w", rec.Username, rec.PollID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, username string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT poll_id, voted_at FROM vote_ledger WHERE username = ? ORDER BY voted_at`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger[%s]: %w", username, err)
	}
	defer rows.Close()

	result := make([]Record, 0)
	for rows.Next() {
		var (
			pollID  string
			votedAt int64
		)
		if err := rows.Scan(&pollID, &votedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		result = append(result, Record{Username: username, PollID: pollID, VotedAt: time.Unix(0, votedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteUser(ctx context.Context, username string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vote_ledger WHERE username = ?`, username); err != nil {
		return fmt.Errorf("failed to clear ledger[%s]: %w", username, err)
	}
	return nil
}
