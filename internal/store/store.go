// Package store defines the storage ports the buddy engine is written
// against. Two adapters implement them: internal/database (Postgres, the
// remote-backed variant) and internal/localstore (key-value fallback for a
// device with no backend configured).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bara-app/buddy-service/internal/models"
)

// Sentinel errors shared by every adapter. The engine translates these into
// its caller-facing taxonomy.
var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a conditional write matched zero rows, i.e. another
	// writer got there first.
	ErrConflict = errors.New("store: conditional update matched nothing")
	// ErrCapReached means an increment-with-ceiling hit its ceiling.
	ErrCapReached = errors.New("store: daily cap reached")
)

// ProfilePatch is a partial profile update. Nil fields are left untouched.
// SetBuddyID distinguishes "clear the buddy" from "don't touch the buddy".
type ProfilePatch struct {
	DisplayName *string
	InviteCode  *string
	Points      *int
	Health      *int

	SetBuddyID bool
	BuddyID    *uuid.UUID
}

// ProfileStore persists BuddyProfile rows.
type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.BuddyProfile, error)
	GetProfileByInviteCode(ctx context.Context, code string) (*models.BuddyProfile, error)
	InsertProfile(ctx context.Context, p *models.BuddyProfile) error
	// PatchProfile applies the patch and returns the updated row, or
	// ErrNotFound if no such profile exists.
	PatchProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.BuddyProfile, error)
	// AdjustPointsHealth adds the (possibly negative) deltas to a profile's
	// points and health, clamped to their ranges, in one atomic step so
	// concurrent adjustments cannot lose each other's writes.
	AdjustPointsHealth(ctx context.Context, id uuid.UUID, pointsDelta, healthDelta int) (*models.BuddyProfile, error)
	// PairProfiles sets both buddy pointers. Adapters that support
	// transactions must apply both writes atomically so a crash never leaves
	// the relationship asymmetric.
	PairProfiles(ctx context.Context, meID, buddyID uuid.UUID) error
}

// RequestStore persists BorrowRequest rows.
//
// Contract: every fetch method first transitions any overdue pending row in
// its scope to expired (resolved_at = now) before returning results. That
// check-then-transition must be a single conditional update at the storage
// layer so two concurrent readers cannot both apply it.
type RequestStore interface {
	InsertRequest(ctx context.Context, r *models.BorrowRequest) error
	GetRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.BorrowRequest, error)
	// LatestIncomingPending returns the newest pending request addressed to
	// buddyID, or ErrNotFound.
	LatestIncomingPending(ctx context.Context, buddyID uuid.UUID, now time.Time) (*models.BorrowRequest, error)
	// LatestOutgoingPending returns the newest pending request authored by
	// requesterID, or ErrNotFound.
	LatestOutgoingPending(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error)
	// LatestOutgoing returns the newest request authored by requesterID in
	// any status, or ErrNotFound.
	LatestOutgoing(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error)
	// ResolvePending flips a pending request to the given terminal status.
	// First writer wins: returns ErrConflict when the request is no longer
	// pending, ErrNotFound when it does not exist.
	ResolvePending(ctx context.Context, id uuid.UUID, status models.BorrowRequestStatus, resolvedAt time.Time) (*models.BorrowRequest, error)
	// MarkConsumed flips an approved request to consumed. Zero-row matches
	// are reported as ErrConflict.
	MarkConsumed(ctx context.Context, id uuid.UUID) error
	// ExpirePairPending expires every pending request strictly between the
	// two users, in either direction.
	ExpirePairPending(ctx context.Context, a, b uuid.UUID, now time.Time) error
	// DeleteRequestsInvolving removes every request where the user appears as
	// requester or buddy. Used only by the demo reset.
	DeleteRequestsInvolving(ctx context.Context, userID uuid.UUID) error
}

// LimitStore persists the per-user per-day approval counters. The engine
// treats a nil LimitStore as "no cap", which is how the local fallback runs.
type LimitStore interface {
	ApprovalsUsedOn(ctx context.Context, userID uuid.UUID, dayKey string) (int, error)
	// IncrementApprovals bumps the counter by one unless it already sits at
	// cap, in which case it returns ErrCapReached without writing. The
	// check-and-bump is atomic at the storage layer.
	IncrementApprovals(ctx context.Context, userID uuid.UUID, dayKey string, cap int) (int, error)
}
