// Package api holds the synchronous HTTP query surface of the chat server.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ideahub/chat-service/internal/apperr"
	"github.com/ideahub/chat-service/internal/auth"
	"github.com/ideahub/chat-service/internal/chat"
)

// UnreadHandler serves GET /unread: the authenticated caller's unread
// message projections, ordered oldest first. The same bearer-token rules as
// the WebSocket handshake apply.
type UnreadHandler struct {
	authenticator *auth.Authenticator
	service       *chat.Service
}

// NewUnreadHandler creates the handler.
func NewUnreadHandler(authenticator *auth.Authenticator, service *chat.Service) *UnreadHandler {
	return &UnreadHandler{authenticator: authenticator, service: service}
}

// ServeHTTP implements http.Handler.
func (h *UnreadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cctx, err := h.authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, apperr.From(err))
		return
	}

	unread, err := h.service.Unread(r.Context(), cctx.UserID)
	if err != nil {
		log.Printf("api: unread query user=%s: %v", cctx.UserID, err)
		writeError(w, http.StatusInternalServerError, apperr.From(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if unread == nil {
		unread = []chat.MessageResponse{}
	}
	_ = json.NewEncoder(w).Encode(unread)
}

func writeError(w http.ResponseWriter, status int, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{Code: e.Code, Message: e.Message})
}
