package models

import (
	"time"

	"github.com/google/uuid"
)

// BorrowRequestStatus enumerates the request state machine. Pending is the
// only non-terminal state reachable by a resolver; Consumed is applied by the
// allowance bridge after an approval has been turned into an allowance.
type BorrowRequestStatus string

const (
	StatusPending  BorrowRequestStatus = "pending"
	StatusApproved BorrowRequestStatus = "approved"
	StatusDenied   BorrowRequestStatus = "denied"
	StatusExpired  BorrowRequestStatus = "expired"
	StatusConsumed BorrowRequestStatus = "consumed"
)

// BorrowRequestDecision is a resolver's verdict on a pending request.
type BorrowRequestDecision string

const (
	DecisionApprove BorrowRequestDecision = "approve"
	DecisionDeny    BorrowRequestDecision = "deny"
)

// ResultingStatus maps a decision to the terminal status it produces.
func (d BorrowRequestDecision) ResultingStatus() BorrowRequestStatus {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusDenied
}

// RequestTTL is how long a pending request stays resolvable.
const RequestTTL = 15 * time.Minute

// BorrowRequest is one ask for extra screen time from a requester to their
// buddy. ResolvedAt is set exactly when the request leaves pending.
type BorrowRequest struct {
	ID               uuid.UUID           `json:"id"`
	RequesterID      uuid.UUID           `json:"requester_id"`
	BuddyID          uuid.UUID           `json:"buddy_id"`
	MinutesRequested int                 `json:"minutes_requested"`
	Note             *string             `json:"note,omitempty"`
	Status           BorrowRequestStatus `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	ResolvedAt       *time.Time          `json:"resolved_at,omitempty"`
	ExpiresAt        time.Time           `json:"expires_at"`

	RequesterDisplayName string `json:"requester_display_name,omitempty"`
	BuddyDisplayName     string `json:"buddy_display_name,omitempty"`
}

// IsExpired reports whether a still-pending request has outlived its TTL.
func (r *BorrowRequest) IsExpired(now time.Time) bool {
	return r.Status == StatusPending && !r.ExpiresAt.After(now)
}
