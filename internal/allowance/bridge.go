// Package allowance turns approved borrow requests into consumable time
// allowances, exactly once each, and hands them to the enforcement monitor.
package allowance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/monitor"
)

// Store is the device-local persistence the bridge needs: the allowance
// itself plus the id of the last request it was derived from. Implemented by
// localstore.Settings.
type Store interface {
	LoadAllowance() (models.BorrowAllowance, bool, error)
	SaveAllowance(a models.BorrowAllowance) error
	ConsumeAllowance() error
	ClearAllowance() error
	LastAppliedRequestID() (uuid.UUID, error)
	SetLastAppliedRequestID(id uuid.UUID) error
}

// Consumer records the approved-to-consumed bookkeeping transition in the
// shared request ledger. Satisfied by *buddy.Service.
type Consumer interface {
	MarkConsumed(ctx context.Context, requestID uuid.UUID) error
}

// Bridge applies approvals observed on the requester's side.
type Bridge struct {
	store    Store
	monitor  monitor.Monitor
	requests Consumer
	log      *logrus.Logger
	now      func() time.Time
}

// NewBridge wires a Bridge. requests may be nil when there is no ledger to
// write the consumed transition back to.
func NewBridge(store Store, mon monitor.Monitor, requests Consumer, log *logrus.Logger) *Bridge {
	if log == nil {
		log = logrus.New()
	}
	return &Bridge{store: store, monitor: mon, requests: requests, log: log, now: time.Now}
}

// SetNow overrides the bridge clock, for tests.
func (b *Bridge) SetNow(now func() time.Time) {
	b.now = now
}

// Apply turns an approved request into a stored allowance and activates it
// with the enforcement monitor. Idempotent: the last-applied marker makes
// repeat observations of the same approval no-ops, so retries and duplicate
// poll ticks cannot double-grant.
func (b *Bridge) Apply(ctx context.Context, req *models.BorrowRequest) error {
	if req == nil || req.Status != models.StatusApproved {
		return nil
	}

	last, err := b.store.LastAppliedRequestID()
	if err != nil {
		return err
	}
	if last == req.ID {
		return nil
	}

	approvedAt := b.now()
	if req.ResolvedAt != nil {
		approvedAt = *req.ResolvedAt
	}
	a := models.BorrowAllowance{
		Minutes:    req.MinutesRequested,
		ApprovedAt: approvedAt,
		ExpiresAt:  models.EndOfDay(approvedAt),
		Consumed:   false,
	}

	if err := b.store.SaveAllowance(a); err != nil {
		return err
	}
	if err := b.store.SetLastAppliedRequestID(req.ID); err != nil {
		return err
	}

	if b.requests != nil {
		if err := b.requests.MarkConsumed(ctx, req.ID); err != nil {
			b.log.WithError(err).WithField("request_id", req.ID).Warn("could not record consumed transition")
		}
	}

	if !b.monitor.ActivateBorrowAllowance(a.Minutes) {
		// Leave the allowance unconsumed; enforcement can retry via Active.
		b.log.WithField("request_id", req.ID).Warn("enforcement declined borrow allowance activation")
		return nil
	}

	b.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"minutes":    a.Minutes,
	}).Info("borrow allowance applied")
	return nil
}

// Active returns the stored allowance while it is still usable. A consumed,
// empty, or expired allowance is cleared on access and reported as absent,
// the same lazy pattern requests use.
func (b *Bridge) Active(now time.Time) (*models.BorrowAllowance, error) {
	a, ok, err := b.store.LoadAllowance()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if a.IsActive(now) {
		return &a, nil
	}
	if err := b.store.ClearAllowance(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Consume marks the stored allowance used. Called when enforcement actually
// starts the bonus window.
func (b *Bridge) Consume() error {
	return b.store.ConsumeAllowance()
}

// Clear drops the stored allowance.
func (b *Bridge) Clear() error {
	return b.store.ClearAllowance()
}
