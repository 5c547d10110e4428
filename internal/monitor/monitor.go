// Package monitor is the seam to the on-device enforcement mechanism: the
// thing that runs countdown timers and shields apps once a time budget runs
// out. The core only tells it what budget and bonus window to honor.
package monitor

import "github.com/sirupsen/logrus"

// Monitor is the enforcement collaborator.
type Monitor interface {
	// ActivateBorrowAllowance starts a bonus window of the given minutes.
	// Returns false when enforcement could not pick it up; the caller keeps
	// the allowance unconsumed so the activation can be retried.
	ActivateBorrowAllowance(minutes int) bool
	// ClearShieldsAndDisableBonus drops any active shields and cancels a
	// running bonus window.
	ClearShieldsAndDisableBonus()
}

// LogMonitor is the stand-in enforcement used when no real device monitor is
// attached; it just records what it was told.
type LogMonitor struct {
	Log *logrus.Logger
}

func (m *LogMonitor) ActivateBorrowAllowance(minutes int) bool {
	m.Log.WithField("minutes", minutes).Info("borrow allowance activated")
	return true
}

func (m *LogMonitor) ClearShieldsAndDisableBonus() {
	m.Log.Info("shields cleared, bonus disabled")
}
