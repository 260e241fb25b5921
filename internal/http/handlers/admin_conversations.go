package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wfsantos/agendabot/internal/conversation"
	"github.com/wfsantos/agendabot/pkg/logging"
)

type conversationReader interface {
	Get(ctx context.Context, tenantID, phone string) (*conversation.Conversation, error)
}

// AdminConversationHandler exposes conversation rows for operator debugging.
type AdminConversationHandler struct {
	store  conversationReader
	logger *logging.Logger
}

func NewAdminConversationHandler(store conversationReader, logger *logging.Logger) *AdminConversationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationHandler{store: store, logger: logger}
}

// HandleGet returns the current dialogue row for a tenant and phone. Absent
// rows come back as idle, matching what the engine would see.
func (h *AdminConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	phone := chi.URLParam(r, "phone")
	if tenantID == "" || phone == "" {
		http.Error(w, "tenant id and phone required", http.StatusBadRequest)
		return
	}
	conv, err := h.store.Get(r.Context(), tenantID, phone)
	if err != nil {
		h.logger.Error("conversation lookup failed", "error", err, "tenant", tenantID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}
