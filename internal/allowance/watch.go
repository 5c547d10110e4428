package allowance

import (
	"context"

	"github.com/bara-app/buddy-service/internal/buddy"
)

// Watch consumes an outgoing-request subscription, applying every approval
// it surfaces. Per-tick errors are logged and skipped; the loop ends when
// the subscription channel closes.
func (b *Bridge) Watch(ctx context.Context, sub *buddy.Subscription) {
	for snap := range sub.C {
		if snap.Err != nil {
			b.log.WithError(snap.Err).Debug("outgoing request poll failed")
			continue
		}
		if err := b.Apply(ctx, snap.Request); err != nil {
			b.log.WithError(err).Warn("could not apply approved request")
		}
	}
}
