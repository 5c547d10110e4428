package localstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/bara-app/buddy-service/internal/models"
)

const (
	keyThresholdMinutes = "settings.threshold.minutes"
	keyOnboardingDone   = "settings.onboarding.completed"
	keyCachedHealth     = "settings.user.health.cached"
	keyCachedPoints     = "settings.user.points.cached"
	keyLastApplied      = "borrow.allowance.lastAppliedRequestID"
	keyAllowance        = "borrow.allowance"
)

// Settings holds the device-local scalar state: the enforcement threshold,
// onboarding flag, the advisory health/points cache, the borrow allowance,
// and the idempotency marker of the allowance bridge. A single mutex guards
// the lot.
type Settings struct {
	mu sync.Mutex
	kv KV
}

// NewSettings wraps a KV backend in a Settings store.
func NewSettings(kv KV) *Settings {
	return &Settings{kv: kv}
}

func (s *Settings) getJSON(key string, out interface{}) (bool, error) {
	data, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Settings) setJSON(key string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.kv.Set(key, data)
}

// ThresholdMinutes returns the configured base screen-time budget, or def
// when unset.
func (s *Settings) ThresholdMinutes(def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	if ok, err := s.getJSON(keyThresholdMinutes, &v); err != nil || !ok {
		return def
	}
	return v
}

// SetThresholdMinutes stores the base screen-time budget.
func (s *Settings) SetThresholdMinutes(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(keyThresholdMinutes, v)
}

// OnboardingCompleted reports whether onboarding has finished on this device.
func (s *Settings) OnboardingCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v bool
	if ok, err := s.getJSON(keyOnboardingDone, &v); err != nil || !ok {
		return false
	}
	return v
}

// SetOnboardingCompleted stores the onboarding flag.
func (s *Settings) SetOnboardingCompleted(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(keyOnboardingDone, v)
}

// SyncProfile mirrors health and points into the local cache. Last write
// wins; the values are advisory display state, so errors are dropped.
func (s *Settings) SyncProfile(ctx context.Context, p *models.BuddyProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.setJSON(keyCachedHealth, models.ClampHealth(p.Health))
	_ = s.setJSON(keyCachedPoints, models.ClampPoints(p.Points))
}

// CachedHealth returns the advisory health value, 100 when unset.
func (s *Settings) CachedHealth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	if ok, err := s.getJSON(keyCachedHealth, &v); err != nil || !ok {
		return 100
	}
	return models.ClampHealth(v)
}

// CachedPoints returns the advisory points value, zero when unset.
func (s *Settings) CachedPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int
	if ok, err := s.getJSON(keyCachedPoints, &v); err != nil || !ok {
		return 0
	}
	return models.ClampPoints(v)
}

// LoadAllowance returns the stored allowance, if any.
func (s *Settings) LoadAllowance() (models.BorrowAllowance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a models.BorrowAllowance
	ok, err := s.getJSON(keyAllowance, &a)
	return a, ok, err
}

// SaveAllowance overwrites the stored allowance.
func (s *Settings) SaveAllowance(a models.BorrowAllowance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(keyAllowance, a)
}

// ConsumeAllowance marks the stored allowance consumed. Irreversible until
// the next SaveAllowance overwrites it.
func (s *Settings) ConsumeAllowance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a models.BorrowAllowance
	ok, err := s.getJSON(keyAllowance, &a)
	if err != nil || !ok {
		return err
	}
	a.Consumed = true
	return s.setJSON(keyAllowance, a)
}

// ClearAllowance removes the stored allowance.
func (s *Settings) ClearAllowance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(keyAllowance)
}

// LastAppliedRequestID returns the id of the last approved request turned
// into an allowance, or uuid.Nil.
func (s *Settings) LastAppliedRequestID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	ok, err := s.getJSON(keyLastApplied, &raw)
	if err != nil || !ok {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}

// SetLastAppliedRequestID stores the idempotency marker.
func (s *Settings) SetLastAppliedRequestID(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(keyLastApplied, id.String())
}

// ClearBorrowState drops the allowance, the idempotency marker, and the
// threshold override. Used by the demo reset.
func (s *Settings) ClearBorrowState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(keyAllowance); err != nil {
		return err
	}
	if err := s.kv.Delete(keyLastApplied); err != nil {
		return err
	}
	return s.kv.Delete(keyThresholdMinutes)
}
