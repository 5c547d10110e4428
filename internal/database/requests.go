package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/store"
)

const requestColumns = "id, requester_id, buddy_id, minutes_requested, note, status, created_at, resolved_at, expires_at"

func scanRequest(row pgx.Row) (*models.BorrowRequest, error) {
	var r models.BorrowRequest
	err := row.Scan(&r.ID, &r.RequesterID, &r.BuddyID, &r.MinutesRequested, &r.Note,
		&r.Status, &r.CreatedAt, &r.ResolvedAt, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// sweepExpired transitions overdue pending rows matching the extra predicate
// to expired. One conditional UPDATE, so two concurrent readers cannot both
// apply the transition to the same row.
func (s *Store) sweepExpired(ctx context.Context, now time.Time, predicate string, args ...interface{}) error {
	q := `UPDATE borrow_requests SET status='expired', resolved_at=$1
	      WHERE status='pending' AND expires_at <= $1 AND ` + predicate
	_, err := s.pool.Exec(ctx, q, append([]interface{}{now}, args...)...)
	return err
}

// InsertRequest creates a new borrow request row.
func (s *Store) InsertRequest(ctx context.Context, r *models.BorrowRequest) error {
	q := `INSERT INTO borrow_requests (id, requester_id, buddy_id, minutes_requested, note, status, created_at, expires_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, r.ID, r.RequesterID, r.BuddyID, r.MinutesRequested,
			r.Note, r.Status, r.CreatedAt, r.ExpiresAt)
		return err
	})
}

// GetRequest returns one request after sweeping it if overdue.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	if err := s.sweepExpired(ctx, now, "id=$2", id); err != nil {
		return nil, err
	}
	q := `SELECT ` + requestColumns + ` FROM borrow_requests WHERE id=$1`
	return s.scanOne(ctx, q, id)
}

// LatestIncomingPending returns the newest pending request addressed to
// buddyID.
func (s *Store) LatestIncomingPending(ctx context.Context, buddyID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	if err := s.sweepExpired(ctx, now, "buddy_id=$2", buddyID); err != nil {
		return nil, err
	}
	q := `SELECT ` + requestColumns + ` FROM borrow_requests
	      WHERE buddy_id=$1 AND status='pending'
	      ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(ctx, q, buddyID)
}

// LatestOutgoingPending returns the newest pending request authored by
// requesterID.
func (s *Store) LatestOutgoingPending(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	if err := s.sweepExpired(ctx, now, "requester_id=$2", requesterID); err != nil {
		return nil, err
	}
	q := `SELECT ` + requestColumns + ` FROM borrow_requests
	      WHERE requester_id=$1 AND status='pending'
	      ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(ctx, q, requesterID)
}

// LatestOutgoing returns the newest request authored by requesterID in any
// status.
func (s *Store) LatestOutgoing(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	if err := s.sweepExpired(ctx, now, "requester_id=$2", requesterID); err != nil {
		return nil, err
	}
	q := `SELECT ` + requestColumns + ` FROM borrow_requests
	      WHERE requester_id=$1
	      ORDER BY created_at DESC LIMIT 1`
	return s.scanOne(ctx, q, requesterID)
}

func (s *Store) scanOne(ctx context.Context, q string, args ...interface{}) (*models.BorrowRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx, q, args...))
}

// ResolvePending flips a pending request to the given terminal status.
// The status predicate makes the transition exclusive: whichever writer's
// UPDATE matches first wins, every later one sees zero rows.
func (s *Store) ResolvePending(ctx context.Context, id uuid.UUID, status models.BorrowRequestStatus, resolvedAt time.Time) (*models.BorrowRequest, error) {
	q := `UPDATE borrow_requests SET status=$2, resolved_at=$3
	      WHERE id=$1 AND status='pending'
	      RETURNING ` + requestColumns
	r, err := scanRequest(s.pool.QueryRow(ctx, q, id, status, resolvedAt))
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.missOrConflict(ctx, id)
	}
	return r, err
}

// MarkConsumed flips an approved request to consumed.
func (s *Store) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	q := `UPDATE borrow_requests SET status='consumed' WHERE id=$1 AND status='approved'`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

// missOrConflict distinguishes "no such row" from "row exists but the
// conditional predicate did not match".
func (s *Store) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM borrow_requests WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

// ExpirePairPending expires every pending request between the two users, in
// either direction.
func (s *Store) ExpirePairPending(ctx context.Context, a, b uuid.UUID, now time.Time) error {
	q := `UPDATE borrow_requests SET status='expired', resolved_at=$1
	      WHERE status='pending'
	        AND ((requester_id=$2 AND buddy_id=$3) OR (requester_id=$3 AND buddy_id=$2))`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, now, a, b)
		return err
	})
}

// DeleteRequestsInvolving removes every request the user appears in.
func (s *Store) DeleteRequestsInvolving(ctx context.Context, userID uuid.UUID) error {
	q := `DELETE FROM borrow_requests WHERE requester_id=$1 OR buddy_id=$1`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID)
		return err
	})
}
