package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayKey(t *testing.T) {
	morning := time.Date(2026, 3, 14, 0, 0, 1, 0, time.Local)
	night := time.Date(2026, 3, 14, 23, 59, 59, 0, time.Local)
	assert.Equal(t, "2026-03-14", DayKey(morning))
	assert.Equal(t, DayKey(morning), DayKey(night))
	assert.NotEqual(t, DayKey(night), DayKey(night.Add(time.Second)))
}

func TestEndOfDay(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 30, 0, 0, time.Local)
	end := EndOfDay(at)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local), end)
	assert.True(t, end.After(at))
	// An instant just before midnight still rolls to the next day.
	assert.Equal(t, end, EndOfDay(end.Add(-time.Nanosecond)))
}

func TestClamps(t *testing.T) {
	assert.Equal(t, 0, ClampHealth(-10))
	assert.Equal(t, 100, ClampHealth(250))
	assert.Equal(t, 42, ClampHealth(42))
	assert.Equal(t, 0, ClampPoints(-1))
	assert.Equal(t, 7, ClampPoints(7))
}

func TestAllowanceIsActive(t *testing.T) {
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.Local)
	a := BorrowAllowance{Minutes: 15, ApprovedAt: now, ExpiresAt: EndOfDay(now)}
	assert.True(t, a.IsActive(now))
	assert.False(t, a.IsActive(a.ExpiresAt))

	a.Consumed = true
	assert.False(t, a.IsActive(now))

	zero := BorrowAllowance{}
	assert.False(t, zero.IsActive(now))
}
