package allowance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bara-app/buddy-service/internal/buddy"
	"github.com/bara-app/buddy-service/internal/localstore"
	"github.com/bara-app/buddy-service/internal/models"
)

// fakeMonitor counts activations and can be told to refuse.
type fakeMonitor struct {
	mu          sync.Mutex
	activations []int
	refuse      bool
	cleared     int
}

func (m *fakeMonitor) ActivateBorrowAllowance(minutes int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false
	}
	m.activations = append(m.activations, minutes)
	return true
}

func (m *fakeMonitor) ClearShieldsAndDisableBonus() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
}

func (m *fakeMonitor) activated() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.activations))
	copy(out, m.activations)
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *localstore.Settings, *fakeMonitor, func() time.Time) {
	t.Helper()
	settings := localstore.NewSettings(localstore.NewMemoryKV())
	mon := &fakeMonitor{}
	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.Local)
	b := NewBridge(settings, mon, nil, logrus.New())
	b.SetNow(func() time.Time { return at })
	return b, settings, mon, func() time.Time { return at }
}

func approvedRequest(minutes int, resolvedAt time.Time) *models.BorrowRequest {
	return &models.BorrowRequest{
		ID:               uuid.New(),
		RequesterID:      uuid.New(),
		BuddyID:          uuid.New(),
		MinutesRequested: minutes,
		Status:           models.StatusApproved,
		ResolvedAt:       &resolvedAt,
	}
}

func TestApplyActivatesOnce(t *testing.T) {
	b, settings, mon, now := newTestBridge(t)
	ctx := context.Background()
	req := approvedRequest(15, now())

	// Duplicate poll ticks deliver the same approval repeatedly.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Apply(ctx, req))
	}
	assert.Equal(t, []int{15}, mon.activations)

	a, err := b.Active(now())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 15, a.Minutes)
	assert.Equal(t, models.EndOfDay(now()), a.ExpiresAt)

	last, err := settings.LastAppliedRequestID()
	require.NoError(t, err)
	assert.Equal(t, req.ID, last)
}

func TestApplyIgnoresNonApproved(t *testing.T) {
	b, _, mon, now := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, nil))
	for _, status := range []models.BorrowRequestStatus{
		models.StatusPending, models.StatusDenied, models.StatusExpired, models.StatusConsumed,
	} {
		req := approvedRequest(10, now())
		req.Status = status
		require.NoError(t, b.Apply(ctx, req))
	}
	assert.Empty(t, mon.activations)

	a, err := b.Active(now())
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestApplyDistinctApprovalsActivateEach(t *testing.T) {
	b, _, mon, now := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, approvedRequest(5, now())))
	require.NoError(t, b.Apply(ctx, approvedRequest(30, now())))
	assert.Equal(t, []int{5, 30}, mon.activations)

	// The newer approval replaced the stored allowance.
	a, err := b.Active(now())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 30, a.Minutes)
}

func TestApplyMonitorRefusalLeavesAllowanceUsable(t *testing.T) {
	b, _, mon, now := newTestBridge(t)
	mon.refuse = true
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, approvedRequest(20, now())))
	assert.Empty(t, mon.activations)

	// The allowance survives so enforcement can pick it up later.
	a, err := b.Active(now())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 20, a.Minutes)
	assert.False(t, a.Consumed)
}

func TestActiveLazyClearing(t *testing.T) {
	b, _, _, now := newTestBridge(t)
	ctx := context.Background()
	require.NoError(t, b.Apply(ctx, approvedRequest(10, now())))

	// Consumed allowances stop being active and are cleared on access.
	require.NoError(t, b.Consume())
	a, err := b.Active(now())
	require.NoError(t, err)
	assert.Nil(t, a)

	// And stay gone.
	a, err = b.Active(now())
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestActiveExpiresAtEndOfDay(t *testing.T) {
	b, _, _, now := newTestBridge(t)
	ctx := context.Background()
	require.NoError(t, b.Apply(ctx, approvedRequest(10, now())))

	a, err := b.Active(now())
	require.NoError(t, err)
	require.NotNil(t, a)

	a, err = b.Active(models.EndOfDay(now()))
	require.NoError(t, err)
	assert.Nil(t, a)
}

// TestWatchEndToEnd runs the full requester-side loop: buddy approves, the
// outgoing watch observes it, the bridge stores and activates the allowance
// and records the consumed transition in the ledger.
func TestWatchEndToEnd(t *testing.T) {
	st := localstore.New(localstore.NewMemoryKV())
	svc := buddy.NewService(buddy.Config{
		Profiles:     st,
		Requests:     st,
		PollInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	_, err := svc.Profile(ctx, a)
	require.NoError(t, err)
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)
	_, err = svc.Pair(ctx, a, bProfile.InviteCode)
	require.NoError(t, err)

	settings := localstore.NewSettings(localstore.NewMemoryKV())
	mon := &fakeMonitor{}
	bridge := NewBridge(settings, mon, svc, logrus.New())

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := svc.ObserveLatestOutgoing(watchCtx, a)
	done := make(chan struct{})
	go func() {
		defer close(done)
		bridge.Watch(watchCtx, sub)
	}()

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 15})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for len(mon.activated()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("approval never reached the monitor")
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, []int{15}, mon.activated())

	// The ledger shows the consumed transition.
	deadline = time.Now().Add(2 * time.Second)
	for {
		latest, err := svc.LatestOutgoing(ctx, a)
		require.NoError(t, err)
		require.NotNil(t, latest)
		if latest.Status == models.StatusConsumed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request stuck in %s", latest.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}
