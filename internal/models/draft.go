package models

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Draft validation failures. Callers surface both as an invalid-draft error.
var (
	ErrInvalidMinutes = errors.New("please choose one of the preset minute options")
	ErrNoteTooLong    = errors.New("message must be 120 characters or less")
)

// AllowedBorrowMinutes are the preset durations a requester may ask for.
var AllowedBorrowMinutes = []int{5, 10, 15, 20, 30}

// MaxNoteLength bounds the optional note attached to a request.
const MaxNoteLength = 120

// BorrowRequestDraft is the unvalidated input of a create call.
type BorrowRequestDraft struct {
	Minutes int
	Note    string
}

// TrimmedNote returns the note with surrounding whitespace removed.
func (d BorrowRequestDraft) TrimmedNote() string {
	return strings.TrimSpace(d.Note)
}

// NormalizedNote returns the trimmed note truncated to MaxNoteLength
// characters, or nil when the note is empty. Truncation counts runes, not
// bytes, so a multibyte character is never split.
func (d BorrowRequestDraft) NormalizedNote() *string {
	trimmed := d.TrimmedNote()
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) > MaxNoteLength {
		runes := []rune(trimmed)
		trimmed = string(runes[:MaxNoteLength])
	}
	return &trimmed
}

// Validate checks the draft against the preset minutes and note bound.
func (d BorrowRequestDraft) Validate() error {
	ok := false
	for _, m := range AllowedBorrowMinutes {
		if d.Minutes == m {
			ok = true
			break
		}
	}
	if !ok {
		return ErrInvalidMinutes
	}
	if utf8.RuneCountInString(d.TrimmedNote()) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}
