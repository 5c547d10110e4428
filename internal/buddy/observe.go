package buddy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bara-app/buddy-service/internal/models"
)

// RequestSnapshot is one poll tick: either the current request (possibly nil
// when nothing matches) or the error that tick produced. Ticks are
// snapshots, not diffs: an unchanged value is yielded again every interval.
type RequestSnapshot struct {
	Request *models.BorrowRequest
	Err     error
}

// Subscription is a live polling loop. Receive from C until it closes; call
// Stop (or cancel the parent context) to halt the loop and release its
// ticker. Stop is idempotent.
type Subscription struct {
	C <-chan RequestSnapshot

	cancel context.CancelFunc
}

// Stop halts the polling loop. The channel closes shortly after.
func (s *Subscription) Stop() {
	s.cancel()
}

// ObserveIncomingPending polls the caller's latest incoming pending request
// every poll interval, starting immediately. Per-tick failures are yielded
// as snapshots rather than ending the subscription: a transient network blip
// must not kill a long-lived watch.
func (s *Service) ObserveIncomingPending(ctx context.Context, userID uuid.UUID) *Subscription {
	return s.observe(ctx, func(ctx context.Context) (*models.BorrowRequest, error) {
		return s.IncomingPending(ctx, userID)
	})
}

// ObserveLatestOutgoing polls the caller's latest outgoing request in any
// status. The requester's side watches this to learn about resolutions.
func (s *Service) ObserveLatestOutgoing(ctx context.Context, userID uuid.UUID) *Subscription {
	return s.observe(ctx, func(ctx context.Context) (*models.BorrowRequest, error) {
		return s.LatestOutgoing(ctx, userID)
	})
}

func (s *Service) observe(ctx context.Context, poll func(context.Context) (*models.BorrowRequest, error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan RequestSnapshot)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			req, err := poll(ctx)
			select {
			case ch <- RequestSnapshot{Request: req, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{C: ch, cancel: cancel}
}
