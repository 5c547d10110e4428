package handlers

import (
	"encoding/json"
	"net/http"
)

// ProfileHandler returns the caller's profile, creating it on first access.
func (a *API) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	profile, err := a.Service.Profile(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, profile)
}

// PairHandler pairs the caller with the owner of an invite code.
//
// Request payload: { "invite_code": "AB12CD" }
func (a *API) PairHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	profile, err := a.Service.Pair(r.Context(), userID, req.InviteCode)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, profile)
}

// UnpairHandler breaks the caller's side of the pairing and expires any
// pending requests between the former pair.
func (a *API) UnpairHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	profile, err := a.Service.Unpair(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, profile)
}

// ResetHandler restores the caller to a factory profile and clears the
// device-local borrow state. Demo affordance, not part of the steady-state
// protocol.
func (a *API) ResetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	profile, err := a.Service.ResetDemoState(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, profile)
}
