// Package buddy implements the borrow-request engine: pairing, request
// lifecycle, daily-cap enforcement, and the polling observation channel. The
// engine is storage-agnostic; it runs unchanged against the Postgres adapter
// or the local key-value fallback through the ports in internal/store.
package buddy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/store"
)

// Approval side effects. The resolver is rewarded for granting time; the
// requester pays for it in points and in health proportional to the minutes
// granted.
const (
	approvalBuddyPointsReward      = 10
	approvalRequesterPointsPenalty = 15
)

// approvalHealthPenalty scales the requester's health cost with the size of
// the grant.
func approvalHealthPenalty(minutes int) int {
	return minutes
}

const defaultDisplayName = "You"

// DefaultPollInterval is how often observation subscriptions re-fetch.
const DefaultPollInterval = 3 * time.Second

// ProfileCache receives a copy of every profile the engine successfully reads
// or writes. It is advisory, last-write-wins state for the enforcement/pet
// side; failures are the cache's problem, not the caller's.
type ProfileCache interface {
	SyncProfile(ctx context.Context, p *models.BuddyProfile)
}

// Config wires a Service. Profiles and Requests are required. A nil Limits
// disables the daily approval cap, which is how the local fallback runs: it
// has no shared ledger to count against.
type Config struct {
	Profiles store.ProfileStore
	Requests store.RequestStore
	Limits   store.LimitStore
	Cache    ProfileCache
	Logger   *logrus.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
	// PollInterval overrides the observation cadence, for tests.
	PollInterval time.Duration
	// OnReset runs during ResetDemoState after storage has been cleared;
	// main wires it to drop the local allowance and enforcement flags.
	OnReset func(ctx context.Context) error
}

// Service is the borrow-request engine.
type Service struct {
	profiles store.ProfileStore
	requests store.RequestStore
	limits   store.LimitStore
	cache    ProfileCache
	log      *logrus.Logger

	now          func() time.Time
	pollInterval time.Duration
	onReset      func(ctx context.Context) error
}

// NewService builds a Service from cfg, filling in defaults.
func NewService(cfg Config) *Service {
	s := &Service{
		profiles:     cfg.Profiles,
		requests:     cfg.Requests,
		limits:       cfg.Limits,
		cache:        cfg.Cache,
		log:          cfg.Logger,
		now:          cfg.Now,
		pollInterval: cfg.PollInterval,
		onReset:      cfg.OnReset,
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	return s
}

// Profile returns the caller's profile, creating it on first access with a
// fresh invite code, zero points, and full health. Idempotent.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*models.BuddyProfile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		p = &models.BuddyProfile{
			ID:          userID,
			DisplayName: defaultDisplayName,
			InviteCode:  NewInviteCode(),
			Points:      0,
			Health:      100,
		}
		if err := s.profiles.InsertProfile(ctx, p); err != nil {
			return nil, serverErr(err)
		}
	} else if err != nil {
		return nil, serverErr(err)
	}

	s.syncCache(ctx, p)
	s.decorateProfile(ctx, p)
	return p, nil
}

// Pair links the caller to the profile owning the given invite code. Both
// buddy pointers are written through the store, which keeps the pair
// symmetric even across a crash (the Postgres adapter uses one transaction).
func (s *Service) Pair(ctx context.Context, userID uuid.UUID, code string) (*models.BuddyProfile, error) {
	me, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeInviteCode(code)
	if normalized == "" {
		return nil, ErrInvalidInviteCode
	}

	buddy, err := s.profiles.GetProfileByInviteCode(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidInviteCode
	} else if err != nil {
		return nil, serverErr(err)
	}
	if buddy.ID == me.ID {
		return nil, ErrInvalidInviteCode
	}

	if err := s.profiles.PairProfiles(ctx, me.ID, buddy.ID); err != nil {
		return nil, serverErr(err)
	}

	updated, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated.BuddyDisplayName = buddy.DisplayName
	return updated, nil
}

// Unpair breaks the caller's side of the relationship: clears the caller's
// buddy pointer, issues a fresh invite code, and expires every pending
// request between the former pair. The former buddy's pointer is left
// untouched; their next unpair call clears it.
func (s *Service) Unpair(ctx context.Context, userID uuid.UUID) (*models.BuddyProfile, error) {
	me, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if me.BuddyID == nil {
		return nil, ErrAlreadyUnpaired
	}
	oldBuddyID := *me.BuddyID

	if err := s.requests.ExpirePairPending(ctx, me.ID, oldBuddyID, s.now()); err != nil {
		return nil, serverErr(err)
	}

	newCode := NewInviteCode()
	updated, err := s.profiles.PatchProfile(ctx, me.ID, store.ProfilePatch{
		InviteCode: &newCode,
		SetBuddyID: true,
		BuddyID:    nil,
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, serverErr(err)
	}

	s.syncCache(ctx, updated)
	return updated, nil
}

// ResetDemoState restores the caller to a factory profile: unpaired, full
// health, zero points, fresh invite code, and no requests on record. The
// configured OnReset hook then clears device-local state (allowance,
// enforcement flags, thresholds).
func (s *Service) ResetDemoState(ctx context.Context, userID uuid.UUID) (*models.BuddyProfile, error) {
	me, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if me.BuddyID != nil {
		if _, err := s.Unpair(ctx, userID); err != nil {
			return nil, errors.Join(ErrResetFailed, err)
		}
	}

	if err := s.requests.DeleteRequestsInvolving(ctx, userID); err != nil {
		return nil, errors.Join(ErrResetFailed, err)
	}

	health := 100
	points := 0
	newCode := NewInviteCode()
	updated, err := s.profiles.PatchProfile(ctx, userID, store.ProfilePatch{
		InviteCode: &newCode,
		Points:     &points,
		Health:     &health,
		SetBuddyID: true,
		BuddyID:    nil,
	})
	if err != nil {
		return nil, errors.Join(ErrResetFailed, err)
	}

	if s.onReset != nil {
		if err := s.onReset(ctx); err != nil {
			return nil, errors.Join(ErrResetFailed, err)
		}
	}

	s.syncCache(ctx, updated)
	return updated, nil
}

// ApprovalsUsedToday reports how many approvals the caller has received
// today. Always zero when no limiter is configured.
func (s *Service) ApprovalsUsedToday(ctx context.Context, userID uuid.UUID) (int, error) {
	if s.limits == nil {
		return 0, nil
	}
	used, err := s.limits.ApprovalsUsedOn(ctx, userID, models.DayKey(s.now()))
	if err != nil {
		return 0, serverErr(err)
	}
	return used, nil
}

// syncCache publishes health/points to the advisory cache. Best effort.
func (s *Service) syncCache(ctx context.Context, p *models.BuddyProfile) {
	if s.cache != nil {
		s.cache.SyncProfile(ctx, p)
	}
}

// decorateProfile fills BuddyDisplayName for paired profiles.
func (s *Service) decorateProfile(ctx context.Context, p *models.BuddyProfile) {
	if p.BuddyID == nil {
		return
	}
	buddy, err := s.profiles.GetProfile(ctx, *p.BuddyID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":  p.ID,
			"buddy_id": *p.BuddyID,
		}).WithError(err).Debug("could not resolve buddy display name")
		return
	}
	p.BuddyDisplayName = buddy.DisplayName
}

// displayName resolves a user's display name, or "" when the lookup fails.
func (s *Service) displayName(ctx context.Context, userID uuid.UUID) string {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return ""
	}
	return p.DisplayName
}
