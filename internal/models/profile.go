package models

import "github.com/google/uuid"

// BuddyProfile is the per-user record shared through the backing store.
// BuddyID is symmetric: after a completed pairing, each profile points at
// the other. BuddyDisplayName is decoration resolved at fetch time and is
// never persisted.
type BuddyProfile struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	InviteCode  string     `json:"invite_code"`
	BuddyID     *uuid.UUID `json:"buddy_id,omitempty"`
	Points      int        `json:"points"`
	Health      int        `json:"health"`

	BuddyDisplayName string `json:"buddy_display_name,omitempty"`
}

// IsPaired reports whether the profile currently has a buddy.
func (p *BuddyProfile) IsPaired() bool {
	return p.BuddyID != nil
}

// ClampHealth bounds a health value to [0, 100].
func ClampHealth(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampPoints bounds a points value to [0, inf).
func ClampPoints(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
