package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wfsantos/agendabot/pkg/logging"
)

type gatewayAdmin interface {
	ConnectionState(ctx context.Context, instanceID string) (string, error)
	CreateInstance(ctx context.Context, instanceID string) error
}

// AdminGatewayHandler lets operators inspect and provision gateway instances.
type AdminGatewayHandler struct {
	gateway gatewayAdmin
	logger  *logging.Logger
}

func NewAdminGatewayHandler(gateway gatewayAdmin, logger *logging.Logger) *AdminGatewayHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminGatewayHandler{gateway: gateway, logger: logger}
}

// HandleState reports whether the WhatsApp session for an instance is open.
func (h *AdminGatewayHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if instanceID == "" {
		http.Error(w, "instance id required", http.StatusBadRequest)
		return
	}
	state, err := h.gateway.ConnectionState(r.Context(), instanceID)
	if err != nil {
		h.logger.Error("gateway state check failed", "error", err, "instance", instanceID)
		http.Error(w, "gateway unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"instance": instanceID,
		"state":    state,
	})
}

// HandleCreate provisions a new gateway instance for a tenant.
func (h *AdminGatewayHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if instanceID == "" {
		http.Error(w, "instance id required", http.StatusBadRequest)
		return
	}
	if err := h.gateway.CreateInstance(r.Context(), instanceID); err != nil {
		h.logger.Error("gateway instance creation failed", "error", err, "instance", instanceID)
		http.Error(w, "gateway unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"instance": instanceID})
}
