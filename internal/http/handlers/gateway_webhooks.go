// Package handlers contains the HTTP layer: the gateway webhook that feeds
// the dialogue engine, health, and the admin debug surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wfsantos/agendabot/internal/conversation"
	"github.com/wfsantos/agendabot/internal/events"
	"github.com/wfsantos/agendabot/internal/notify"
	observemetrics "github.com/wfsantos/agendabot/internal/observability/metrics"
	"github.com/wfsantos/agendabot/internal/tenancy"
	"github.com/wfsantos/agendabot/pkg/logging"
)

const maxWebhookBody = 1 << 20

type dialogueEngine interface {
	Handle(ctx context.Context, tenant *tenancy.Tenant, msg events.InboundMessage) (conversation.Result, error)
}

type tenantResolver interface {
	ResolveByInstance(ctx context.Context, instanceID string) (*tenancy.Tenant, error)
	ResolveSoleEnabled(ctx context.Context) (*tenancy.Tenant, error)
}

type textSender interface {
	SendText(ctx context.Context, instanceID, recipient, text string) error
}

type processedTracker interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type confirmationNotifier interface {
	BookingConfirmed(ctx context.Context, c notify.Confirmation) error
}

// GatewayWebhookHandler processes inbound message events from the WhatsApp
// gateway.
type GatewayWebhookHandler struct {
	engine        dialogueEngine
	tenants       tenantResolver
	sender        textSender
	processed     processedTracker
	notifier      confirmationNotifier
	webhookSecret string
	logger        *logging.Logger
	metrics       *observemetrics.MessagingMetrics
}

type GatewayWebhookConfig struct {
	Engine        dialogueEngine
	Tenants       tenantResolver
	Sender        textSender
	Processed     processedTracker
	Notifier      confirmationNotifier
	WebhookSecret string
	Logger        *logging.Logger
	Metrics       *observemetrics.MessagingMetrics
}

func NewGatewayWebhookHandler(cfg GatewayWebhookConfig) *GatewayWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &GatewayWebhookHandler{
		engine:        cfg.Engine,
		tenants:       cfg.Tenants,
		sender:        cfg.Sender,
		processed:     cfg.Processed,
		notifier:      cfg.Notifier,
		webhookSecret: cfg.WebhookSecret,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// HandleMessages receives one gateway event. Skippable payloads (statuses,
// reactions, group or bot-authored messages) are acknowledged with 200 so
// the gateway never retries them.
func (h *GatewayWebhookHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := "error"
	defer func() {
		h.metrics.ObserveInbound(result)
		h.metrics.ObserveWebhookLatency(result, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	msg, ok := events.Extract(payload)
	if !ok || msg.FromBot || msg.Group {
		result = "skipped"
		w.WriteHeader(http.StatusOK)
		return
	}

	tenant, err := h.resolveTenant(r.Context(), msg.InstanceID)
	if err != nil {
		if errors.Is(err, tenancy.ErrTenantNotFound) || errors.Is(err, tenancy.ErrAmbiguousTenant) {
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return
		}
		h.logger.Error("tenant resolution failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !h.authorized(r, tenant) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Claim before processing so concurrent redeliveries collapse to one.
	if msg.MessageID != "" {
		claimed, err := h.processed.MarkProcessed(r.Context(), "gateway", msg.MessageID)
		if err != nil {
			h.logger.Error("processed claim failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !claimed {
			result = "duplicate"
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	res, err := h.engine.Handle(r.Context(), tenant, msg)
	if err != nil {
		h.releaseClaim(r.Context(), msg.MessageID)
		h.logger.Error("dialogue handling failed", "error", err, "tenant", tenant.ID)
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}

	if res.Reply != "" {
		h.deliverReply(r.Context(), tenant, msg, res)
	}
	result = "processed"
	w.WriteHeader(http.StatusOK)
}

func (h *GatewayWebhookHandler) resolveTenant(ctx context.Context, instanceID string) (*tenancy.Tenant, error) {
	if instanceID != "" {
		return h.tenants.ResolveByInstance(ctx, instanceID)
	}
	return h.tenants.ResolveSoleEnabled(ctx)
}

// authorized accepts the shared webhook secret or the tenant's own gateway
// key; gateways typically cannot attach bearer tokens to webhook calls.
func (h *GatewayWebhookHandler) authorized(r *http.Request, tenant *tenancy.Tenant) bool {
	if h.webhookSecret != "" && r.Header.Get("X-Webhook-Secret") == h.webhookSecret {
		return true
	}
	if key := r.Header.Get("apikey"); key != "" && tenant.GatewayAPIKey != "" && key == tenant.GatewayAPIKey {
		return true
	}
	return false
}

// deliverReply sends the engine's reply. A failed confirmation send falls
// back to email; any other failed send is logged and dropped, since the
// conversation state is already persisted.
func (h *GatewayWebhookHandler) deliverReply(ctx context.Context, tenant *tenancy.Tenant, msg events.InboundMessage, res conversation.Result) {
	instanceID := tenant.GatewayInstanceID
	if instanceID == "" {
		instanceID = msg.InstanceID
	}
	err := h.sender.SendText(ctx, instanceID, msg.Sender, res.Reply)
	if err == nil {
		return
	}
	h.logger.Error("reply send failed", "error", err, "tenant", tenant.ID)
	if !res.Confirmation || h.notifier == nil {
		return
	}
	confirmation := notify.Confirmation{
		TenantName:   tenant.Name,
		ToEmail:      tenant.NotifyEmail,
		CustomerName: res.Booked.CustomerName,
		Phone:        msg.Sender,
		ServiceName:  res.Booked.ServiceName,
		Date:         displayDate(res.Booked.Date),
		Time:         res.Booked.Time,
		BookingID:    res.BookingID,
	}
	if err := h.notifier.BookingConfirmed(ctx, confirmation); err != nil {
		h.logger.Error("confirmation email fallback failed", "error", err, "tenant", tenant.ID)
	}
}

func (h *GatewayWebhookHandler) releaseClaim(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := h.processed.Release(ctx, "gateway", messageID); err != nil {
		h.logger.Error("claim release failed", "error", err, "message_id", messageID)
	}
}

func displayDate(stored string) string {
	parts := strings.Split(stored, "-")
	if len(parts) != 3 {
		return stored
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}
