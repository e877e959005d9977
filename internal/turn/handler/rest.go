package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/xid"

	"github.com/Anmol9893/botservice/pkg/bot"
	"github.com/Anmol9893/botservice/pkg/channel"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/state"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// ErrorResponse is the body of every REST error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AcceptedResponse is returned when replies will be delivered later.
type AcceptedResponse struct {
	ConversationID string `json:"conversation_id"`
}

// ProactiveRequest is the body of a proactive message.
type ProactiveRequest struct {
	Text    string         `json:"text,omitempty"`
	Replies []dialog.Reply `json:"replies,omitempty"`
}

// RegisterRoutes registers the REST endpoints on mux.
func (h *TurnHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", h.Messages)
	mux.HandleFunc("GET /api/v1/conversations/{id}", h.GetConversationREST)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", h.ResetConversationREST)
	mux.HandleFunc("POST /api/v1/conversations/{id}/proactive", h.Proactive)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Messages handles POST /api/messages. An activity with reply_to is
// answered 202 and its replies are pushed to that URL.
func (h *TurnHandler) Messages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var a dialog.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if a.ConversationID == "" {
		a.ConversationID = xid.New().String()
	}

	if a.ReplyTo != "" && h.deliverer != nil {
		if err := h.deliverer.Validate(a.ReplyTo); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.processAsync(r.Context(), a); err != nil {
			writeError(w, http.StatusServiceUnavailable, "turn queue is full")
			return
		}
		writeJSON(w, http.StatusAccepted, AcceptedResponse{ConversationID: a.ConversationID})
		return
	}

	res, err := h.process(r.Context(), a)
	if err != nil {
		if errors.Is(err, bot.ErrInvalidActivity) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetConversationREST handles GET /api/v1/conversations/{id}.
func (h *TurnHandler) GetConversationREST(w http.ResponseWriter, r *http.Request) {
	conv, err := h.bot.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ResetConversationREST handles DELETE /api/v1/conversations/{id}.
func (h *TurnHandler) ResetConversationREST(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock := h.locks.lock(id)
	defer unlock()
	if err := h.bot.Reset(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Proactive handles POST /api/v1/conversations/{id}/proactive: replies sent
// outside of a turn to the conversation's stored reply-to URL.
func (h *TurnHandler) Proactive(w http.ResponseWriter, r *http.Request) {
	if h.deliverer == nil {
		writeError(w, http.StatusNotImplemented, "proactive delivery is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ProactiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	replies := req.Replies
	if req.Text != "" {
		replies = append([]dialog.Reply{dialog.Text(req.Text)}, replies...)
	}
	if len(replies) == 0 {
		writeError(w, http.StatusBadRequest, "text or replies are required")
		return
	}

	id := r.PathValue("id")
	ref, found, err := h.bot.Reference(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if !found || ref.ReplyTo == "" {
		writeError(w, http.StatusNotFound, "conversation has no reply route")
		return
	}

	out := channel.NewOutbound(id, replies)
	out.Proactive = true
	if err := h.deliverer.Send(r.Context(), ref.ReplyTo, out); err != nil {
		switch {
		case errors.Is(err, channel.ErrCircuitOpen):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, channel.ErrRejectedURL):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "delivery failed: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ConversationID: id})
}
