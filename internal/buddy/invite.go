package buddy

import (
	"math/rand"
	"strings"
)

// inviteAlphabet omits characters that read ambiguously on a small screen
// (0/O, 1/I).
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const inviteCodeLength = 6

// NewInviteCode returns a fresh 6-character invite code. Codes are pairing
// handles, not secrets, so math/rand is sufficient.
func NewInviteCode() string {
	var b strings.Builder
	b.Grow(inviteCodeLength)
	for i := 0; i < inviteCodeLength; i++ {
		b.WriteByte(inviteAlphabet[rand.Intn(len(inviteAlphabet))])
	}
	return b.String()
}

// NormalizeInviteCode trims whitespace and upper-cases a user-entered code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
