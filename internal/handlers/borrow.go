package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/bara-app/buddy-service/internal/models"
)

// CreateBorrowHandler creates a pending borrow request to the caller's buddy.
//
// Request payload: { "minutes": 15, "note": "math homework" }
func (a *API) CreateBorrowHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req struct {
		Minutes int    `json:"minutes"`
		Note    string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	created, err := a.Service.CreateBorrowRequest(r.Context(), userID, models.BorrowRequestDraft{
		Minutes: req.Minutes,
		Note:    req.Note,
	})
	if err != nil {
		a.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	a.writeJSON(w, created)
}

// ResolveBorrowHandler applies the caller's decision to a request addressed
// to them.
//
// Request payload: { "request_id": "some-uuid", "decision": "approve" }
func (a *API) ResolveBorrowHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req struct {
		RequestID string `json:"request_id"`
		Decision  string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		http.Error(w, "invalid request_id", http.StatusBadRequest)
		return
	}
	decision := models.BorrowRequestDecision(req.Decision)
	if decision != models.DecisionApprove && decision != models.DecisionDeny {
		http.Error(w, "decision must be approve or deny", http.StatusBadRequest)
		return
	}

	resolved, err := a.Service.Resolve(r.Context(), userID, requestID, decision)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, resolved)
}

// IncomingHandler returns the caller's latest incoming pending request, or
// null when there is none.
func (a *API) IncomingHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	req, err := a.Service.IncomingPending(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, req)
}

// OutgoingHandler returns the caller's latest outgoing request in any
// status, or null. The requester's side polls this to observe resolutions.
func (a *API) OutgoingHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	req, err := a.Service.LatestOutgoing(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, req)
}

// ApprovalsUsedHandler reports how many approvals the caller has received
// today.
func (a *API) ApprovalsUsedHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := a.identify(w, r)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	used, err := a.Service.ApprovalsUsedToday(r.Context(), userID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	a.writeJSON(w, map[string]int{"approvals_used": used})
}
