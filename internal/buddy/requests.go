package buddy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/store"
)

// CreateBorrowRequest validates the draft and inserts a pending request from
// the caller to their buddy. At most one outgoing pending request may exist
// per requester, and (when a limiter is configured) a requester who already
// received today's cap of approvals may not ask again until tomorrow.
func (s *Service) CreateBorrowRequest(ctx context.Context, userID uuid.UUID, draft models.BorrowRequestDraft) (*models.BorrowRequest, error) {
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDraft, err)
	}

	me, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if me.BuddyID == nil {
		return nil, ErrNotPaired
	}

	now := s.now()
	if _, err := s.requests.LatestOutgoingPending(ctx, me.ID, now); err == nil {
		return nil, ErrOutgoingRequestAlreadyPending
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, serverErr(err)
	}

	if s.limits != nil {
		used, err := s.limits.ApprovalsUsedOn(ctx, me.ID, models.DayKey(now))
		if err != nil {
			return nil, serverErr(err)
		}
		if used >= models.DailyApprovalCap {
			return nil, ErrDailyApprovalCapReached
		}
	}

	req := &models.BorrowRequest{
		ID:               uuid.New(),
		RequesterID:      me.ID,
		BuddyID:          *me.BuddyID,
		MinutesRequested: draft.Minutes,
		Note:             draft.NormalizedNote(),
		Status:           models.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(models.RequestTTL),
	}
	if err := s.requests.InsertRequest(ctx, req); err != nil {
		return nil, serverErr(err)
	}

	req.RequesterDisplayName = me.DisplayName
	req.BuddyDisplayName = me.BuddyDisplayName

	s.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"requester":  req.RequesterID,
		"buddy":      req.BuddyID,
		"minutes":    req.MinutesRequested,
	}).Info("borrow request created")
	return req, nil
}

// IncomingPending returns the newest unexpired pending request addressed to
// the caller, or nil when there is none.
func (s *Service) IncomingPending(ctx context.Context, userID uuid.UUID) (*models.BorrowRequest, error) {
	req, err := s.requests.LatestIncomingPending(ctx, userID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, serverErr(err)
	}
	s.decorateRequest(ctx, req)
	return req, nil
}

// OutgoingPending returns the caller's unexpired pending request, or nil.
func (s *Service) OutgoingPending(ctx context.Context, userID uuid.UUID) (*models.BorrowRequest, error) {
	req, err := s.requests.LatestOutgoingPending(ctx, userID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, serverErr(err)
	}
	s.decorateRequest(ctx, req)
	return req, nil
}

// LatestOutgoing returns the caller's most recent request in any status, or
// nil. This is what the requester's side polls to learn about resolutions.
func (s *Service) LatestOutgoing(ctx context.Context, userID uuid.UUID) (*models.BorrowRequest, error) {
	req, err := s.requests.LatestOutgoing(ctx, userID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, serverErr(err)
	}
	s.decorateRequest(ctx, req)
	return req, nil
}

// Resolve applies the caller's decision to a pending request addressed to
// them. Transitions out of pending are exclusive: the conditional update at
// the storage layer guarantees only one resolver wins, and side effects are
// applied only by the winner.
func (s *Service) Resolve(ctx context.Context, userID, requestID uuid.UUID, decision models.BorrowRequestDecision) (*models.BorrowRequest, error) {
	now := s.now()

	current, err := s.requests.GetRequest(ctx, requestID, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, serverErr(err)
	}

	if current.BuddyID != userID {
		return nil, ErrForbidden
	}

	// The store already swept this row, so an overdue request shows up here
	// as expired rather than pending.
	switch current.Status {
	case models.StatusPending:
	case models.StatusExpired:
		return nil, ErrRequestExpired
	default:
		return nil, ErrAlreadyResolved
	}

	if decision == models.DecisionApprove && s.limits != nil {
		_, err := s.limits.IncrementApprovals(ctx, current.RequesterID, models.DayKey(now), models.DailyApprovalCap)
		if errors.Is(err, store.ErrCapReached) {
			return nil, ErrDailyApprovalCapReached
		} else if err != nil {
			return nil, serverErr(err)
		}
	}

	updated, err := s.requests.ResolvePending(ctx, requestID, decision.ResultingStatus(), now)
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		// Lost the race. Re-read to report what actually happened.
		latest, ferr := s.requests.GetRequest(ctx, requestID, now)
		if ferr == nil && latest.Status == models.StatusExpired {
			return nil, ErrRequestExpired
		}
		return nil, ErrAlreadyResolved
	} else if err != nil {
		return nil, serverErr(err)
	}

	if decision == models.DecisionApprove {
		s.applyApprovalEffects(ctx, updated)
	}

	s.decorateRequest(ctx, updated)
	s.log.WithFields(logrus.Fields{
		"request_id": updated.ID,
		"resolver":   userID,
		"status":     updated.Status,
	}).Info("borrow request resolved")
	return updated, nil
}

// applyApprovalEffects transfers points and health for one approval: the
// resolver earns points for granting, the requester pays points and health
// scaled by the minutes granted. Runs once per approval because only the
// winning resolver reaches it; the deltas themselves are applied atomically
// at the store, so approvals touching the same profile cannot lose each
// other's writes.
func (s *Service) applyApprovalEffects(ctx context.Context, req *models.BorrowRequest) {
	requester, err := s.profiles.AdjustPointsHealth(ctx, req.RequesterID,
		-approvalRequesterPointsPenalty, -approvalHealthPenalty(req.MinutesRequested))
	if err == nil {
		s.syncCache(ctx, requester)
	} else {
		s.log.WithError(err).WithField("user_id", req.RequesterID).Warn("could not apply requester approval effects")
	}

	buddy, err := s.profiles.AdjustPointsHealth(ctx, req.BuddyID, approvalBuddyPointsReward, 0)
	if err == nil {
		s.syncCache(ctx, buddy)
	} else {
		s.log.WithError(err).WithField("user_id", req.BuddyID).Warn("could not apply buddy approval effects")
	}
}

// decorateRequest fills requester/buddy display names on a fetched request.
func (s *Service) decorateRequest(ctx context.Context, req *models.BorrowRequest) {
	req.RequesterDisplayName = s.displayName(ctx, req.RequesterID)
	req.BuddyDisplayName = s.displayName(ctx, req.BuddyID)
}


// MarkConsumed records that an approved request has been turned into an
// allowance by the requester's device. Bookkeeping only; losing the
// conditional update means another path already consumed it.
func (s *Service) MarkConsumed(ctx context.Context, requestID uuid.UUID) error {
	err := s.requests.MarkConsumed(ctx, requestID)
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return serverErr(err)
	}
	return nil
}
