// Package handlers is the HTTP surface the UI layer talks to. Every endpoint
// identifies the caller from an auth_token cookie; a request without a usable
// token is given a fresh device identity on the spot.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bara-app/buddy-service/internal/allowance"
	"github.com/bara-app/buddy-service/internal/auth"
	"github.com/bara-app/buddy-service/internal/buddy"
)

// API holds the handler dependencies.
type API struct {
	Service *buddy.Service
	Bridge  *allowance.Bridge
	Log     *logrus.Logger
}

// NewAPI builds an API.
func NewAPI(svc *buddy.Service, bridge *allowance.Bridge, log *logrus.Logger) *API {
	if log == nil {
		log = logrus.New()
	}
	return &API{Service: svc, Bridge: bridge, Log: log}
}

// Routes registers every endpoint on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/buddy/profile", a.ProfileHandler)
	mux.HandleFunc("/buddy/pair", a.PairHandler)
	mux.HandleFunc("/buddy/unpair", a.UnpairHandler)
	mux.HandleFunc("/buddy/reset", a.ResetHandler)
	mux.HandleFunc("/borrow/create", a.CreateBorrowHandler)
	mux.HandleFunc("/borrow/resolve", a.ResolveBorrowHandler)
	mux.HandleFunc("/borrow/incoming", a.IncomingHandler)
	mux.HandleFunc("/borrow/outgoing", a.OutgoingHandler)
	mux.HandleFunc("/borrow/approvals-used", a.ApprovalsUsedHandler)
}

// identify resolves the caller from the auth_token cookie, minting a fresh
// device identity (and setting the cookie) when the token is missing or
// stale.
func (a *API) identify(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if userID, err := auth.VerifyToken(token); err == nil {
			return userID, nil
		}
	}

	userID := uuid.New()
	token, err := auth.CreateToken(userID)
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return userID, nil
}

// writeJSON encodes v with a 200 status.
func (a *API) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.WithError(err).Warn("failed to encode response")
	}
}

// writeErr maps an engine error to an HTTP status and a JSON error body.
func (a *API) writeErr(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, buddy.ErrInvalidDraft), errors.Is(err, buddy.ErrInvalidInviteCode):
		return http.StatusBadRequest
	case errors.Is(err, buddy.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, buddy.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, buddy.ErrNotPaired),
		errors.Is(err, buddy.ErrAlreadyUnpaired),
		errors.Is(err, buddy.ErrOutgoingRequestAlreadyPending),
		errors.Is(err, buddy.ErrAlreadyResolved),
		errors.Is(err, buddy.ErrRequestExpired),
		errors.Is(err, buddy.ErrDailyApprovalCapReached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
