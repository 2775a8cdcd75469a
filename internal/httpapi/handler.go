// Package httpapi exposes the dispatch engine over JSON HTTP. Handlers
// validate input, delegate to the engine, and translate sentinel errors to
// status codes; they never reach into the store directly.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"blesaf/dispatch-service/internal/dispatch"
	"blesaf/dispatch-service/internal/models"
	"blesaf/dispatch-service/internal/store"
)

// Engine is the slice of the dispatch engine the handlers need. Tests swap
// in a fake.
type Engine interface {
	Checkin(ctx context.Context, req dispatch.CheckinRequest) (dispatch.CheckinResult, error)
	CallNext(ctx context.Context, branchID, counterID, tellerID string) (models.Ticket, error)
	StartServing(ctx context.Context, ticketID, tellerID string) (models.Ticket, error)
	CompleteTicket(ctx context.Context, ticketID, tellerID string) (models.Ticket, error)
	MarkNoShow(ctx context.Context, ticketID, tellerID string) (models.Ticket, error)
	TransferTicket(ctx context.Context, ticketID, targetServiceID, actorID string) (models.Ticket, error)
	BumpPriority(ctx context.Context, ticketID, reason, actorID string) (models.Ticket, error)
	CancelTicket(ctx context.Context, ticketID, actorID string) (models.Ticket, error)
	PauseQueue(ctx context.Context, branchID, actorID string)
	ResumeQueue(ctx context.Context, branchID, actorID string)
	SetCounterStatus(ctx context.Context, branchID, counterID, status string) (models.Counter, error)
	StartBreak(ctx context.Context, branchID, counterID, reason, actorID string, durationMins int) (models.Break, error)
	EndBreak(ctx context.Context, branchID, counterID string) (models.Break, error)
	GetBranchSnapshot(ctx context.Context, branchID string) (dispatch.BranchSnapshot, error)
	GetTicketPosition(ctx context.Context, ticketID string) (dispatch.TicketPosition, error)
	TicketHistory(ctx context.Context, ticketID string) ([]store.HistoryEntry, error)
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register attaches every route to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tickets", h.handleCheckin)
	mux.HandleFunc("GET /api/tickets/{id}", h.handleTicketPosition)
	mux.HandleFunc("GET /api/tickets/{id}/history", h.handleTicketHistory)
	mux.HandleFunc("POST /api/tickets/{id}/serve", h.handleServe)
	mux.HandleFunc("POST /api/tickets/{id}/complete", h.handleComplete)
	mux.HandleFunc("POST /api/tickets/{id}/no-show", h.handleNoShow)
	mux.HandleFunc("POST /api/tickets/{id}/transfer", h.handleTransfer)
	mux.HandleFunc("POST /api/tickets/{id}/bump", h.handleBump)
	mux.HandleFunc("POST /api/tickets/{id}/cancel", h.handleCancel)
	mux.HandleFunc("POST /api/branches/{branch}/call-next", h.handleCallNext)
	mux.HandleFunc("GET /api/branches/{branch}/snapshot", h.handleSnapshot)
	mux.HandleFunc("POST /api/branches/{branch}/pause", h.handlePause)
	mux.HandleFunc("POST /api/branches/{branch}/resume", h.handleResume)
	mux.HandleFunc("PUT /api/branches/{branch}/counters/{id}/status", h.handleCounterStatus)
	mux.HandleFunc("POST /api/branches/{branch}/counters/{id}/break", h.handleStartBreak)
	mux.HandleFunc("DELETE /api/branches/{branch}/counters/{id}/break", h.handleEndBreak)
	mux.HandleFunc("GET /healthz", handleHealthz)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCheckin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BranchID      string `json:"branch_id"`
		ServiceID     string `json:"service_id"`
		Phone         string `json:"phone"`
		NotifyChannel string `json:"notify_channel"`
		CheckinMethod string `json:"checkin_method"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	body.BranchID = strings.TrimSpace(body.BranchID)
	body.ServiceID = strings.TrimSpace(body.ServiceID)
	if body.BranchID == "" || body.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "branch_id and service_id are required")
		return
	}
	result, err := h.engine.Checkin(r.Context(), dispatch.CheckinRequest{
		BranchID:      body.BranchID,
		ServiceID:     body.ServiceID,
		Phone:         strings.TrimSpace(body.Phone),
		NotifyChannel: body.NotifyChannel,
		CheckinMethod: body.CheckinMethod,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CounterID string `json:"counter_id"`
		TellerID  string `json:"teller_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.CounterID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter_id is required")
		return
	}
	ticket, err := h.engine.CallNext(r.Context(), r.PathValue("branch"), body.CounterID, body.TellerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) ticketID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if uuid.Validate(id) != nil {
		writeError(w, http.StatusBadRequest, "invalid_ticket_id", "ticket id must be a uuid")
		return "", false
	}
	return id, true
}

type ticketAction func(ctx context.Context, ticketID, actorID string) (models.Ticket, error)

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, action ticketAction) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}
	var body struct {
		ActorID  string `json:"actor_id"`
		TellerID string `json:"teller_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	actor := body.ActorID
	if actor == "" {
		actor = body.TellerID
	}
	ticket, err := action(r.Context(), id, actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	h.handleTicketAction(w, r, h.engine.StartServing)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.handleTicketAction(w, r, h.engine.CompleteTicket)
}

func (h *Handler) handleNoShow(w http.ResponseWriter, r *http.Request) {
	h.handleTicketAction(w, r, h.engine.MarkNoShow)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleTicketAction(w, r, h.engine.CancelTicket)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}
	var body struct {
		ServiceID string `json:"service_id"`
		ActorID   string `json:"actor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.ServiceID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	ticket, err := h.engine.TransferTicket(r.Context(), id, body.ServiceID, body.ActorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleBump(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason  string `json:"reason"`
		ActorID string `json:"actor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Reason) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "reason is required")
		return
	}
	ticket, err := h.engine.BumpPriority(r.Context(), id, body.Reason, body.ActorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTicketPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}
	position, err := h.engine.GetTicketPosition(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (h *Handler) handleTicketHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}
	entries, err := h.engine.TicketHistory(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.GetBranchSnapshot(r.Context(), r.PathValue("branch"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID string `json:"actor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.engine.PauseQueue(r.Context(), r.PathValue("branch"), body.ActorID)
	writeJSON(w, http.StatusOK, map[string]string{"queue_status": models.QueuePaused})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID string `json:"actor_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.engine.ResumeQueue(r.Context(), r.PathValue("branch"), body.ActorID)
	writeJSON(w, http.StatusOK, map[string]string{"queue_status": models.QueueOpen})
}

func (h *Handler) handleCounterStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status != models.CounterOpen && body.Status != models.CounterClosed {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be open or closed")
		return
	}
	counter, err := h.engine.SetCounterStatus(r.Context(), r.PathValue("branch"), r.PathValue("id"), body.Status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

func (h *Handler) handleStartBreak(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason       string `json:"reason"`
		ActorID      string `json:"actor_id"`
		DurationMins int    `json:"duration_mins"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.DurationMins <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "duration_mins must be positive")
		return
	}
	brk, err := h.engine.StartBreak(r.Context(), r.PathValue("branch"), r.PathValue("id"), body.Reason, body.ActorID, body.DurationMins)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, brk)
}

func (h *Handler) handleEndBreak(w http.ResponseWriter, r *http.Request) {
	brk, err := h.engine.EndBreak(r.Context(), r.PathValue("branch"), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, brk)
}

// decodeBody parses the JSON body into dst. An empty body is allowed so
// action endpoints can be called without arguments.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeEngineError maps sentinel errors from the engine and store to HTTP
// status codes. Anything unrecognized is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		writeError(w, http.StatusNotFound, "ticket_not_found", err.Error())
	case errors.Is(err, store.ErrCounterNotFound):
		writeError(w, http.StatusNotFound, "counter_not_found", err.Error())
	case errors.Is(err, store.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, store.ErrBranchNotFound):
		writeError(w, http.StatusNotFound, "branch_not_found", err.Error())
	case errors.Is(err, store.ErrNoEligibleTicket):
		writeError(w, http.StatusNotFound, "no_eligible_ticket", err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, store.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification", err.Error())
	case errors.Is(err, store.ErrQueuePaused):
		writeError(w, http.StatusConflict, "queue_paused", err.Error())
	case errors.Is(err, store.ErrQueueClosed):
		writeError(w, http.StatusConflict, "queue_closed", err.Error())
	case errors.Is(err, store.ErrCounterBusy):
		writeError(w, http.StatusConflict, "counter_busy", err.Error())
	case errors.Is(err, store.ErrCounterClosed):
		writeError(w, http.StatusConflict, "counter_closed", err.Error())
	case errors.Is(err, store.ErrCounterMismatch):
		writeError(w, http.StatusConflict, "counter_mismatch", err.Error())
	case errors.Is(err, store.ErrAlreadyVIP):
		writeError(w, http.StatusConflict, "already_vip", err.Error())
	case errors.Is(err, store.ErrNotTicketOwner):
		writeError(w, http.StatusForbidden, "not_ticket_owner", err.Error())
	case errors.Is(err, store.ErrBreakActive):
		writeError(w, http.StatusConflict, "break_active", err.Error())
	case errors.Is(err, store.ErrNoActiveBreak):
		writeError(w, http.StatusConflict, "no_active_break", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
