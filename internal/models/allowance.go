package models

import "time"

// BorrowAllowance is the requester-side grant produced from exactly one
// approved request. It lives in device-local storage, never in the shared
// store, and expires at the end of the local calendar day it was approved in.
type BorrowAllowance struct {
	Minutes    int       `json:"minutes"`
	ApprovedAt time.Time `json:"approved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Consumed   bool      `json:"consumed"`
}

// IsActive reports whether the allowance can still be handed to the
// enforcement monitor.
func (a BorrowAllowance) IsActive(now time.Time) bool {
	return !a.Consumed && a.Minutes > 0 && a.ExpiresAt.After(now)
}
