package buddy

import "errors"

// Caller-facing error kinds. Every operation fails explicitly with one of
// these; no retries happen inside the engine, retry policy belongs to the
// caller. Messages are short and human-readable because the UI layer shows
// them verbatim.
var (
	ErrNotPaired                     = errors.New("pair with a buddy first")
	ErrAlreadyUnpaired               = errors.New("you are not paired with anyone")
	ErrInvalidInviteCode             = errors.New("invite code not found")
	ErrOutgoingRequestAlreadyPending = errors.New("you already have a pending request")
	ErrDailyApprovalCapReached       = errors.New("daily borrow cap reached (2 approved requests today)")
	ErrRequestExpired                = errors.New("that request expired")
	ErrAlreadyResolved               = errors.New("request has already been resolved")
	ErrForbidden                     = errors.New("you are not allowed to perform that action")
	ErrMissingConfiguration          = errors.New("no backend is configured yet")
	ErrResetFailed                   = errors.New("could not reset demo state")
	ErrInvalidDraft                  = errors.New("invalid borrow request")
	ErrNotFound                      = errors.New("request not found")
)

// ServerError carries a message surfaced by the backing store, e.g. a
// Postgres failure or a dead connection. It wraps nothing intentionally:
// callers match on the kind, not the cause.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// serverErr wraps a store failure into a ServerError, preserving the text.
func serverErr(err error) error {
	return &ServerError{Message: err.Error()}
}
