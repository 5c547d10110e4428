package buddy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bara-app/buddy-service/internal/localstore"
	"github.com/bara-app/buddy-service/internal/models"
)

// testClock is an adjustable clock shared by a test and its service.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestService builds a service over the in-memory local store with the
// daily limiter enabled, plus a second capless service sharing the same
// store for local-mode assertions.
func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	clock := newTestClock()
	st := localstore.New(localstore.NewMemoryKV())
	svc := NewService(Config{
		Profiles:     st,
		Requests:     st,
		Limits:       st,
		Now:          clock.now,
		PollInterval: 10 * time.Millisecond,
	})
	return svc, clock
}

func pairUsers(t *testing.T, svc *Service) (a, b uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	a, b = uuid.New(), uuid.New()

	_, err := svc.Profile(ctx, a)
	require.NoError(t, err)
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)

	_, err = svc.Pair(ctx, a, bProfile.InviteCode)
	require.NoError(t, err)
	return a, b
}

func TestProfileGetOrCreateIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Profile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, first.ID)
	assert.Equal(t, 100, first.Health)
	assert.Equal(t, 0, first.Points)
	assert.Len(t, first.InviteCode, 6)
	assert.Nil(t, first.BuddyID)

	second, err := svc.Profile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.InviteCode, second.InviteCode)
}

func TestPairWithInviteCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	aProfile, err := svc.Profile(ctx, a)
	require.NoError(t, err)
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)

	// Lower-case, padded input still pairs.
	paired, err := svc.Pair(ctx, a, "  "+lower(bProfile.InviteCode)+" ")
	require.NoError(t, err)
	require.NotNil(t, paired.BuddyID)
	assert.Equal(t, b, *paired.BuddyID)
	assert.Equal(t, bProfile.DisplayName, paired.BuddyDisplayName)

	// Pairing is symmetric after one call.
	bAfter, err := svc.Profile(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, bAfter.BuddyID)
	assert.Equal(t, a, *bAfter.BuddyID)

	// Own code and unknown codes are rejected the same way.
	_, err = svc.Pair(ctx, a, aProfile.InviteCode)
	assert.ErrorIs(t, err, ErrInvalidInviteCode)
	_, err = svc.Pair(ctx, a, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrInvalidInviteCode)
	_, err = svc.Pair(ctx, a, "   ")
	assert.ErrorIs(t, err, ErrInvalidInviteCode)
}

func lower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}

func TestCreateBorrowRequestValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, _ := pairUsers(t, svc)

	for _, minutes := range []int{0, 1, 12, 25, 60, -5} {
		_, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: minutes})
		assert.ErrorIs(t, err, ErrInvalidDraft, "minutes=%d", minutes)
	}

	unpaired := uuid.New()
	_, err := svc.Profile(ctx, unpaired)
	require.NoError(t, err)
	_, err = svc.CreateBorrowRequest(ctx, unpaired, models.BorrowRequestDraft{Minutes: 15})
	assert.ErrorIs(t, err, ErrNotPaired)
}

func TestCreateBorrowRequestPresets(t *testing.T) {
	ctx := context.Background()
	for _, minutes := range models.AllowedBorrowMinutes {
		svc, clock := newTestService(t)
		a, b := pairUsers(t, svc)

		req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: minutes, Note: "  help  "})
		require.NoError(t, err)
		assert.Equal(t, minutes, req.MinutesRequested)
		assert.Equal(t, models.StatusPending, req.Status)
		assert.Equal(t, a, req.RequesterID)
		assert.Equal(t, b, req.BuddyID)
		require.NotNil(t, req.Note)
		assert.Equal(t, "help", *req.Note)
		assert.Equal(t, clock.now().Add(15*time.Minute), req.ExpiresAt)
	}
}

func TestCreateSecondPendingRequestFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, _ := pairUsers(t, svc)

	_, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 15})
	require.NoError(t, err)

	// Different minutes and note make no difference.
	_, err = svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5, Note: "other"})
	assert.ErrorIs(t, err, ErrOutgoingRequestAlreadyPending)
}

func TestResolveApprove(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 15})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolver earns points; requester pays points and health.
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 10, bProfile.Points)

	aProfile, err := svc.Profile(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 85, aProfile.Health)
	assert.Equal(t, 0, aProfile.Points)
}

func TestApprovalEffectsAccumulate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	for i := 0; i < 2; i++ {
		req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
		require.NoError(t, err)
		_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
		require.NoError(t, err)
	}

	// Each approval adds its deltas on top of the previous state.
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 20, bProfile.Points)

	aProfile, err := svc.Profile(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 90, aProfile.Health)
	assert.Equal(t, 0, aProfile.Points)
}

func TestResolveDenyHasNoSideEffects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 30})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, b, req.ID, models.DecisionDeny)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, resolved.Status)

	bProfile, _ := svc.Profile(ctx, b)
	aProfile, _ := svc.Profile(ctx, a)
	assert.Equal(t, 0, bProfile.Points)
	assert.Equal(t, 100, aProfile.Health)
}

func TestResolveGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 10})
	require.NoError(t, err)

	// Only the addressed buddy may resolve.
	_, err = svc.Resolve(ctx, a, req.ID, models.DecisionApprove)
	assert.ErrorIs(t, err, ErrForbidden)
	stranger := uuid.New()
	_, err = svc.Resolve(ctx, stranger, req.ID, models.DecisionApprove)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Resolve(ctx, b, uuid.New(), models.DecisionApprove)
	assert.ErrorIs(t, err, ErrNotFound)

	// Second resolve finds a terminal request.
	_, err = svc.Resolve(ctx, b, req.ID, models.DecisionDeny)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveExpiredRequest(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 20})
	require.NoError(t, err)

	clock.advance(16 * time.Minute)

	_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
	assert.ErrorIs(t, err, ErrRequestExpired)

	// The lazy sweep left the request terminal, not approved.
	latest, err := svc.LatestOutgoing(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.StatusExpired, latest.Status)
	require.NotNil(t, latest.ResolvedAt)

	// No side effects were applied.
	bProfile, _ := svc.Profile(ctx, b)
	assert.Equal(t, 0, bProfile.Points)
}

func TestExpiredRequestInvisibleToPendingFetches(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	_, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
	require.NoError(t, err)

	incoming, err := svc.IncomingPending(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, incoming)

	clock.advance(16 * time.Minute)

	incoming, err = svc.IncomingPending(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, incoming)

	// The expired request frees the requester to ask again.
	_, err = svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
	require.NoError(t, err)
}

func TestDailyApprovalCap(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	approve := func() error {
		req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
		if err != nil {
			return err
		}
		_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
		return err
	}

	require.NoError(t, approve())
	require.NoError(t, approve())

	used, err := svc.ApprovalsUsedToday(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	// Third attempt dies at create time on the requester's counter.
	_, err = svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
	assert.ErrorIs(t, err, ErrDailyApprovalCapReached)

	// After local midnight the counter starts fresh.
	clock.advance(24 * time.Hour)
	require.NoError(t, approve())
}

func TestResolveCapCheckedForRequester(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	// Burn the requester's cap, then sneak a third request in before the
	// resolver acts: the resolve itself must refuse.
	for i := 0; i < 2; i++ {
		req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
		require.NoError(t, err)
		_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
		require.NoError(t, err)
	}
	st := svc.requests
	third := &models.BorrowRequest{
		ID:               uuid.New(),
		RequesterID:      a,
		BuddyID:          b,
		MinutesRequested: 5,
		Status:           models.StatusPending,
		CreatedAt:        clock.now(),
		ExpiresAt:        clock.now().Add(models.RequestTTL),
	}
	require.NoError(t, st.InsertRequest(ctx, third))

	_, err := svc.Resolve(ctx, b, third.ID, models.DecisionApprove)
	assert.ErrorIs(t, err, ErrDailyApprovalCapReached)

	// Denying is still allowed at the cap.
	_, err = svc.Resolve(ctx, b, third.ID, models.DecisionDeny)
	require.NoError(t, err)
}

func TestUnpair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	// An unrelated pair with its own pending request must be untouched.
	c, d := pairUsers(t, svc)
	otherReq, err := svc.CreateBorrowRequest(ctx, c, models.BorrowRequestDraft{Minutes: 10})
	require.NoError(t, err)

	_, err = svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 10})
	require.NoError(t, err)

	before, err := svc.Profile(ctx, a)
	require.NoError(t, err)

	after, err := svc.Unpair(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, after.BuddyID)
	assert.NotEqual(t, before.InviteCode, after.InviteCode)

	// The pair's pending request expired with the relationship.
	out, err := svc.LatestOutgoing(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.StatusExpired, out.Status)

	// The unrelated pending request is still pending.
	other, err := svc.IncomingPending(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, otherReq.ID, other.ID)

	// The former buddy's pointer is deliberately left in place; their own
	// unpair call clears it.
	bProfile, err := svc.Profile(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, bProfile.BuddyID)
	assert.Equal(t, a, *bProfile.BuddyID)

	_, err = svc.Unpair(ctx, a)
	assert.ErrorIs(t, err, ErrAlreadyUnpaired)
}

func TestResetDemoState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 30})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
	require.NoError(t, err)

	hookRan := false
	svc.onReset = func(ctx context.Context) error {
		hookRan = true
		return nil
	}

	reset, err := svc.ResetDemoState(ctx, a)
	require.NoError(t, err)
	assert.True(t, hookRan)
	assert.Nil(t, reset.BuddyID)
	assert.Equal(t, 100, reset.Health)
	assert.Equal(t, 0, reset.Points)

	out, err := svc.LatestOutgoing(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLocalModeHasNoCap(t *testing.T) {
	clock := newTestClock()
	st := localstore.New(localstore.NewMemoryKV())
	svc := NewService(Config{
		Profiles: st,
		Requests: st,
		Now:      clock.now,
	})
	ctx := context.Background()
	a, b := pairUsers(t, svc)

	// Three approvals in one day go through without a limiter.
	for i := 0; i < 3; i++ {
		req, err := svc.CreateBorrowRequest(ctx, a, models.BorrowRequestDraft{Minutes: 5})
		require.NoError(t, err)
		_, err = svc.Resolve(ctx, b, req.ID, models.DecisionApprove)
		require.NoError(t, err)
	}

	used, err := svc.ApprovalsUsedToday(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}
