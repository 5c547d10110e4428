package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyApprovalCap is how many approvals a requester may receive per local
// calendar day in the remote-backed variant.
const DailyApprovalCap = 2

// DailyBorrowLimit is one row of the per-user, per-day approval counter.
// ApprovalsUsed only ever grows; the day rolling over starts a fresh row.
type DailyBorrowLimit struct {
	UserID        uuid.UUID `json:"user_id"`
	DayKey        string    `json:"day_key"`
	ApprovalsUsed int       `json:"approvals_used"`
}

// DayKey formats a moment as the local-calendar-day key used by the limiter.
func DayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// EndOfDay returns the first instant of the local day after t. Allowances
// granted during a day expire at this boundary.
func EndOfDay(t time.Time) time.Time {
	local := t.Local()
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location()).AddDate(0, 0, 1)
}
