package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bara-app/buddy-service/internal/store"
)

// ApprovalsUsedOn returns the approval counter for one user and day, zero
// when no row exists yet.
func (s *Store) ApprovalsUsedOn(ctx context.Context, userID uuid.UUID, dayKey string) (int, error) {
	var used int
	q := `SELECT approvals_used FROM daily_borrow_limits WHERE user_id=$1 AND day_key=$2`
	err := s.pool.QueryRow(ctx, q, userID, dayKey).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

// IncrementApprovals bumps the counter by one unless it already sits at cap.
// A single upsert with a ceiling predicate: two racing approvals cannot both
// push the counter past the cap, the loser's update matches zero rows and
// comes back as ErrCapReached.
func (s *Store) IncrementApprovals(ctx context.Context, userID uuid.UUID, dayKey string, cap int) (int, error) {
	if cap <= 0 {
		return 0, store.ErrCapReached
	}
	q := `INSERT INTO daily_borrow_limits (user_id, day_key, approvals_used)
	      VALUES ($1, $2, 1)
	      ON CONFLICT (user_id, day_key)
	      DO UPDATE SET approvals_used = daily_borrow_limits.approvals_used + 1
	      WHERE daily_borrow_limits.approvals_used < $3
	      RETURNING approvals_used`
	var used int
	err := s.pool.QueryRow(ctx, q, userID, dayKey, cap).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		current, cerr := s.ApprovalsUsedOn(ctx, userID, dayKey)
		if cerr != nil {
			return 0, cerr
		}
		return current, store.ErrCapReached
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}
