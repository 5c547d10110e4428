package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bara-app/buddy-service/internal/models"
	"github.com/bara-app/buddy-service/internal/store"
)

const (
	keyProfiles = "buddy.profiles"
	keyRequests = "buddy.requests"
	keyLimits   = "buddy.limits"
)

// Store implements the profile, request, and limit ports over a KV backend.
// One mutex serializes every operation; conditional transitions (resolve,
// expiry, cap increments) are therefore atomic here the same way the remote
// adapter makes them atomic with conditional SQL.
type Store struct {
	mu sync.Mutex
	kv KV
}

// New wraps a KV backend in a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

var (
	_ store.ProfileStore = (*Store)(nil)
	_ store.RequestStore = (*Store)(nil)
	_ store.LimitStore   = (*Store)(nil)
)

func (s *Store) loadProfiles() ([]*models.BuddyProfile, error) {
	var ps []*models.BuddyProfile
	if err := s.loadJSON(keyProfiles, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (s *Store) loadRequests() ([]*models.BorrowRequest, error) {
	var rs []*models.BorrowRequest
	if err := s.loadJSON(keyRequests, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (s *Store) loadLimits() ([]*models.DailyBorrowLimit, error) {
	var ls []*models.DailyBorrowLimit
	if err := s.loadJSON(keyLimits, &ls); err != nil {
		return nil, err
	}
	return ls, nil
}

func (s *Store) loadJSON(key string, out interface{}) error {
	data, ok, err := s.kv.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (s *Store) saveJSON(key string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.kv.Set(key, data)
}

// GetProfile returns the profile with the given id.
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.BuddyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetProfileByInviteCode returns the profile owning the (already normalized)
// invite code.
func (s *Store) GetProfileByInviteCode(ctx context.Context, code string) (*models.BuddyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.InviteCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// InsertProfile appends a new profile.
func (s *Store) InsertProfile(ctx context.Context, p *models.BuddyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return err
	}
	for _, existing := range ps {
		if existing.ID == p.ID {
			return fmt.Errorf("profile %s already exists", p.ID)
		}
	}
	cp := *p
	cp.BuddyDisplayName = ""
	ps = append(ps, &cp)
	return s.saveJSON(keyProfiles, ps)
}

// PatchProfile applies a partial update and returns the updated profile.
func (s *Store) PatchProfile(ctx context.Context, id uuid.UUID, patch store.ProfilePatch) (*models.BuddyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID != id {
			continue
		}
		applyPatch(p, patch)
		if err := s.saveJSON(keyProfiles, ps); err != nil {
			return nil, err
		}
		cp := *p
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

// AdjustPointsHealth applies clamped deltas to points and health. Atomic
// under the store mutex.
func (s *Store) AdjustPointsHealth(ctx context.Context, id uuid.UUID, pointsDelta, healthDelta int) (*models.BuddyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID != id {
			continue
		}
		p.Points = models.ClampPoints(p.Points + pointsDelta)
		p.Health = models.ClampHealth(p.Health + healthDelta)
		if err := s.saveJSON(keyProfiles, ps); err != nil {
			return nil, err
		}
		cp := *p
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

// PairProfiles sets both buddy pointers under the single store mutex.
func (s *Store) PairProfiles(ctx context.Context, meID, buddyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, err := s.loadProfiles()
	if err != nil {
		return err
	}
	var me, buddy *models.BuddyProfile
	for _, p := range ps {
		switch p.ID {
		case meID:
			me = p
		case buddyID:
			buddy = p
		}
	}
	if me == nil || buddy == nil {
		return store.ErrNotFound
	}
	me.BuddyID = &buddy.ID
	buddy.BuddyID = &me.ID
	return s.saveJSON(keyProfiles, ps)
}

func applyPatch(p *models.BuddyProfile, patch store.ProfilePatch) {
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.InviteCode != nil {
		p.InviteCode = *patch.InviteCode
	}
	if patch.Points != nil {
		p.Points = models.ClampPoints(*patch.Points)
	}
	if patch.Health != nil {
		p.Health = models.ClampHealth(*patch.Health)
	}
	if patch.SetBuddyID {
		p.BuddyID = patch.BuddyID
	}
}

// InsertRequest appends a new borrow request.
func (s *Store) InsertRequest(ctx context.Context, r *models.BorrowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.loadRequests()
	if err != nil {
		return err
	}
	cp := *r
	cp.RequesterDisplayName = ""
	cp.BuddyDisplayName = ""
	rs = append(rs, &cp)
	return s.saveJSON(keyRequests, rs)
}

// GetRequest returns one request after sweeping overdue pending rows.
func (s *Store) GetRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.sweptRequests(now)
	if err != nil {
		return nil, err
	}
	for _, r := range rs {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// LatestIncomingPending returns the newest pending request addressed to
// buddyID.
func (s *Store) LatestIncomingPending(ctx context.Context, buddyID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	return s.latest(now, func(r *models.BorrowRequest) bool {
		return r.BuddyID == buddyID && r.Status == models.StatusPending
	})
}

// LatestOutgoingPending returns the newest pending request authored by
// requesterID.
func (s *Store) LatestOutgoingPending(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	return s.latest(now, func(r *models.BorrowRequest) bool {
		return r.RequesterID == requesterID && r.Status == models.StatusPending
	})
}

// LatestOutgoing returns the newest request authored by requesterID in any
// status.
func (s *Store) LatestOutgoing(ctx context.Context, requesterID uuid.UUID, now time.Time) (*models.BorrowRequest, error) {
	return s.latest(now, func(r *models.BorrowRequest) bool {
		return r.RequesterID == requesterID
	})
}

func (s *Store) latest(now time.Time, match func(*models.BorrowRequest) bool) (*models.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.sweptRequests(now)
	if err != nil {
		return nil, err
	}
	var matched []*models.BorrowRequest
	for _, r := range rs {
		if match(r) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	cp := *matched[0]
	return &cp, nil
}

// sweptRequests loads all requests after transitioning overdue pending rows
// to expired. Callers must hold the mutex.
func (s *Store) sweptRequests(now time.Time) ([]*models.BorrowRequest, error) {
	rs, err := s.loadRequests()
	if err != nil {
		return nil, err
	}
	dirty := false
	for _, r := range rs {
		if r.IsExpired(now) {
			r.Status = models.StatusExpired
			at := now
			r.ResolvedAt = &at
			dirty = true
		}
	}
	if dirty {
		if err := s.saveJSON(keyRequests, rs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// ResolvePending flips a pending request to a terminal status. First writer
// wins under the mutex.
func (s *Store) ResolvePending(ctx context.Context, id uuid.UUID, status models.BorrowRequestStatus, resolvedAt time.Time) (*models.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.loadRequests()
	if err != nil {
		return nil, err
	}
	for _, r := range rs {
		if r.ID != id {
			continue
		}
		if r.Status != models.StatusPending {
			return nil, store.ErrConflict
		}
		r.Status = status
		at := resolvedAt
		r.ResolvedAt = &at
		if err := s.saveJSON(keyRequests, rs); err != nil {
			return nil, err
		}
		cp := *r
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

// MarkConsumed flips an approved request to consumed.
func (s *Store) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.loadRequests()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.ID != id {
			continue
		}
		if r.Status != models.StatusApproved {
			return store.ErrConflict
		}
		r.Status = models.StatusConsumed
		return s.saveJSON(keyRequests, rs)
	}
	return store.ErrNotFound
}

// ExpirePairPending expires every pending request between the two users.
func (s *Store) ExpirePairPending(ctx context.Context, a, b uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.loadRequests()
	if err != nil {
		return err
	}
	dirty := false
	for _, r := range rs {
		if r.Status != models.StatusPending {
			continue
		}
		between := (r.RequesterID == a && r.BuddyID == b) || (r.RequesterID == b && r.BuddyID == a)
		if !between {
			continue
		}
		r.Status = models.StatusExpired
		at := now
		r.ResolvedAt = &at
		dirty = true
	}
	if !dirty {
		return nil
	}
	return s.saveJSON(keyRequests, rs)
}

// DeleteRequestsInvolving removes every request the user appears in.
func (s *Store) DeleteRequestsInvolving(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.loadRequests()
	if err != nil {
		return err
	}
	kept := rs[:0]
	for _, r := range rs {
		if r.RequesterID == userID || r.BuddyID == userID {
			continue
		}
		kept = append(kept, r)
	}
	return s.saveJSON(keyRequests, kept)
}

// ApprovalsUsedOn returns the counter for one user and day, zero if absent.
func (s *Store) ApprovalsUsedOn(ctx context.Context, userID uuid.UUID, dayKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.loadLimits()
	if err != nil {
		return 0, err
	}
	for _, l := range ls {
		if l.UserID == userID && l.DayKey == dayKey {
			return l.ApprovalsUsed, nil
		}
	}
	return 0, nil
}

// IncrementApprovals bumps the counter by one unless it already sits at cap.
// Atomic under the store mutex.
func (s *Store) IncrementApprovals(ctx context.Context, userID uuid.UUID, dayKey string, cap int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, err := s.loadLimits()
	if err != nil {
		return 0, err
	}
	for _, l := range ls {
		if l.UserID == userID && l.DayKey == dayKey {
			if l.ApprovalsUsed >= cap {
				return l.ApprovalsUsed, store.ErrCapReached
			}
			l.ApprovalsUsed++
			if err := s.saveJSON(keyLimits, ls); err != nil {
				return 0, err
			}
			return l.ApprovalsUsed, nil
		}
	}
	if cap <= 0 {
		return 0, store.ErrCapReached
	}
	ls = append(ls, &models.DailyBorrowLimit{UserID: userID, DayKey: dayKey, ApprovalsUsed: 1})
	if err := s.saveJSON(keyLimits, ls); err != nil {
		return 0, err
	}
	return 1, nil
}
