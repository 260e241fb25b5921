package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wfsantos/agendabot/internal/conversation"
	"github.com/wfsantos/agendabot/internal/events"
	"github.com/wfsantos/agendabot/internal/notify"
	"github.com/wfsantos/agendabot/internal/tenancy"
)

type fakeEngine struct {
	result conversation.Result
	err    error
	calls  int
	lastIn events.InboundMessage
}

func (f *fakeEngine) Handle(_ context.Context, _ *tenancy.Tenant, msg events.InboundMessage) (conversation.Result, error) {
	f.calls++
	f.lastIn = msg
	return f.result, f.err
}

type fakeResolver struct {
	tenant      *tenancy.Tenant
	err         error
	soleCalls   int
	byInstCalls int
}

func (f *fakeResolver) ResolveByInstance(_ context.Context, _ string) (*tenancy.Tenant, error) {
	f.byInstCalls++
	return f.tenant, f.err
}

func (f *fakeResolver) ResolveSoleEnabled(_ context.Context) (*tenancy.Tenant, error) {
	f.soleCalls++
	return f.tenant, f.err
}

type fakeSender struct {
	err       error
	calls     int
	recipient string
	text      string
}

func (f *fakeSender) SendText(_ context.Context, _, recipient, text string) error {
	f.calls++
	f.recipient = recipient
	f.text = text
	return f.err
}

type fakeProcessed struct {
	claimed  bool
	err      error
	marks    int
	releases int
}

func (f *fakeProcessed) MarkProcessed(_ context.Context, _, _ string) (bool, error) {
	f.marks++
	return f.claimed, f.err
}

func (f *fakeProcessed) Release(_ context.Context, _, _ string) error {
	f.releases++
	return nil
}

type fakeNotifier struct {
	calls int
	last  notify.Confirmation
}

func (f *fakeNotifier) BookingConfirmed(_ context.Context, c notify.Confirmation) error {
	f.calls++
	f.last = c
	return nil
}

func enabledTenant() *tenancy.Tenant {
	return &tenancy.Tenant{
		ID:                "t1",
		Name:              "Salão Alfa",
		Timezone:          "America/Sao_Paulo",
		BotEnabled:        true,
		GatewayInstanceID: "inst1",
		GatewayAPIKey:     "tenant-key",
		NotifyEmail:       "dono@alfa.com",
	}
}

type webhookFixture struct {
	handler   *GatewayWebhookHandler
	engine    *fakeEngine
	resolver  *fakeResolver
	sender    *fakeSender
	processed *fakeProcessed
	notifier  *fakeNotifier
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		engine:    &fakeEngine{},
		resolver:  &fakeResolver{tenant: enabledTenant()},
		sender:    &fakeSender{},
		processed: &fakeProcessed{claimed: true},
		notifier:  &fakeNotifier{},
	}
	f.handler = NewGatewayWebhookHandler(GatewayWebhookConfig{
		Engine:        f.engine,
		Tenants:       f.resolver,
		Sender:        f.sender,
		Processed:     f.processed,
		Notifier:      f.notifier,
		WebhookSecret: "shared-secret",
	})
	return f
}

func messagePayload(sender, id, text string) string {
	payload := map[string]any{
		"instance": "inst1",
		"data": map[string]any{
			"key": map[string]any{
				"remoteJid": sender,
				"id":        id,
				"fromMe":    false,
			},
			"message": map[string]any{"conversation": text},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func postWebhook(h *GatewayWebhookHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.HandleMessages(rr, req)
	return rr
}

func authHeaders() map[string]string {
	return map[string]string{"X-Webhook-Secret": "shared-secret"}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	f := newWebhookFixture()
	rr := postWebhook(f.handler, "{not json", authHeaders())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if f.engine.calls != 0 {
		t.Error("engine must not run on malformed payloads")
	}
}

func TestWebhookAcknowledgesStatusEvents(t *testing.T) {
	f := newWebhookFixture()
	body := `{"instance":"inst1","event":"messages.update","data":{"status":"DELIVERY_ACK"}}`
	rr := postWebhook(f.handler, body, authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for status event, got %d", rr.Code)
	}
	if f.engine.calls != 0 {
		t.Error("status events must not reach the engine")
	}
}

func TestWebhookSkipsGroupAndBotMessages(t *testing.T) {
	f := newWebhookFixture()
	rr := postWebhook(f.handler, messagePayload("123456@g.us", "m1", "oi"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for group message, got %d", rr.Code)
	}

	fromBot := `{"instance":"inst1","data":{"key":{"remoteJid":"5511987654321@s.whatsapp.net","id":"m2","fromMe":true},"message":{"conversation":"resposta"}}}`
	rr = postWebhook(f.handler, fromBot, authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for bot echo, got %d", rr.Code)
	}
	if f.engine.calls != 0 {
		t.Error("group and bot messages must not reach the engine")
	}
}

func TestWebhookUnknownTenant(t *testing.T) {
	f := newWebhookFixture()
	f.resolver.tenant = nil
	f.resolver.err = tenancy.ErrTenantNotFound
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "oi"), authHeaders())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestWebhookResolvesSoleTenantWithoutInstance(t *testing.T) {
	f := newWebhookFixture()
	body := `{"data":{"key":{"remoteJid":"5511987654321@s.whatsapp.net","id":"m1","fromMe":false},"message":{"conversation":"oi"}}}`
	rr := postWebhook(f.handler, body, authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.resolver.soleCalls != 1 || f.resolver.byInstCalls != 0 {
		t.Errorf("expected sole-tenant fallback, got byInstance=%d sole=%d", f.resolver.byInstCalls, f.resolver.soleCalls)
	}
}

func TestWebhookAuth(t *testing.T) {
	f := newWebhookFixture()
	body := messagePayload("5511987654321@s.whatsapp.net", "m1", "oi")

	rr := postWebhook(f.handler, body, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rr.Code)
	}

	rr = postWebhook(f.handler, body, map[string]string{"X-Webhook-Secret": "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", rr.Code)
	}

	rr = postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m2", "oi"),
		map[string]string{"apikey": "tenant-key"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with tenant gateway key, got %d", rr.Code)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	f := newWebhookFixture()
	f.processed.claimed = false
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "oi"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rr.Code)
	}
	if f.engine.calls != 0 {
		t.Error("duplicate deliveries must not reach the engine")
	}
}

func TestWebhookProcessesAndReplies(t *testing.T) {
	f := newWebhookFixture()
	f.engine.result = conversation.Result{Reply: "Qual serviço você deseja?"}
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "agendar"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.engine.lastIn.Sender != "5511987654321" {
		t.Errorf("unexpected sender %q", f.engine.lastIn.Sender)
	}
	if f.engine.lastIn.Text != "agendar" {
		t.Errorf("unexpected text %q", f.engine.lastIn.Text)
	}
	if f.sender.calls != 1 || f.sender.text != "Qual serviço você deseja?" {
		t.Errorf("expected reply send, got calls=%d text=%q", f.sender.calls, f.sender.text)
	}
	if f.processed.marks != 1 {
		t.Errorf("expected one processed claim, got %d", f.processed.marks)
	}
}

func TestWebhookSilentResultSendsNothing(t *testing.T) {
	f := newWebhookFixture()
	f.engine.result = conversation.Result{}
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "bom dia"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.sender.calls != 0 {
		t.Errorf("expected no outbound send, got %d", f.sender.calls)
	}
}

func TestWebhookEngineFailureReleasesClaim(t *testing.T) {
	f := newWebhookFixture()
	f.engine.err = errors.New("dynamo down")
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "oi"), authHeaders())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if f.processed.releases != 1 {
		t.Errorf("expected claim release so the gateway can redeliver, got %d", f.processed.releases)
	}
}

func TestWebhookConfirmationEmailFallback(t *testing.T) {
	f := newWebhookFixture()
	f.sender.err = errors.New("all gateway bases failed")
	f.engine.result = conversation.Result{
		Reply:        "Agendamento confirmado!",
		Confirmation: true,
		BookingID:    "bk-1",
		Booked: conversation.Slots{
			ServiceName:  "Corte",
			Date:         "2025-12-25",
			Time:         "09:00",
			CustomerName: "Maria",
		},
	}
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "confirmar"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 even when the send fails, got %d", rr.Code)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected email fallback, got %d calls", f.notifier.calls)
	}
	c := f.notifier.last
	if c.ToEmail != "dono@alfa.com" || c.BookingID != "bk-1" || c.ServiceName != "Corte" {
		t.Errorf("unexpected confirmation payload: %+v", c)
	}
	if c.Date != "25/12/2025" {
		t.Errorf("expected dd/mm/yyyy date, got %q", c.Date)
	}
}

func TestWebhookNonConfirmationSendFailureIsDropped(t *testing.T) {
	f := newWebhookFixture()
	f.sender.err = errors.New("all gateway bases failed")
	f.engine.result = conversation.Result{Reply: "Qual data?"}
	rr := postWebhook(f.handler, messagePayload("5511987654321@s.whatsapp.net", "m1", "corte"), authHeaders())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.notifier.calls != 0 {
		t.Errorf("email fallback is reserved for confirmations, got %d calls", f.notifier.calls)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("unexpected health body: %v", body)
	}
}

type fakeConversationReader struct {
	conv *conversation.Conversation
	err  error
}

func (f *fakeConversationReader) Get(_ context.Context, _, _ string) (*conversation.Conversation, error) {
	return f.conv, f.err
}

func TestAdminConversationHandler(t *testing.T) {
	reader := &fakeConversationReader{conv: &conversation.Conversation{
		TenantID: "t1",
		Phone:    "5511987654321",
		State:    conversation.StateAwaitDate,
	}}
	h := NewAdminConversationHandler(reader, nil)

	r := chi.NewRouter()
	r.Get("/admin/tenants/{tenantID}/conversations/{phone}", h.HandleGet)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/conversations/5511987654321", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var conv conversation.Conversation
	if err := json.Unmarshal(rr.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if conv.State != conversation.StateAwaitDate {
		t.Errorf("unexpected state %q", conv.State)
	}

	reader.conv = nil
	reader.err = errors.New("dynamo down")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/conversations/5511987654321", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store failure, got %d", rr.Code)
	}
}
