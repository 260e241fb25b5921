package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wfsantos/agendabot/internal/http/handlers"
)

func newTestRouter(adminSecret string) http.Handler {
	return New(&Config{
		Health:             handlers.NewHealthHandler("test"),
		AdminConversations: handlers.NewAdminConversationHandler(nil, nil),
		AdminAuthSecret:    adminSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
}

func TestHealthRoute(t *testing.T) {
	r := newTestRouter("")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	r := newTestRouter("")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	r := newTestRouter("test-secret")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/conversations/5511987654321", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/conversations/5511987654321", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rr.Code)
	}
}

func TestAdminRoutesDisabledWithoutSecret(t *testing.T) {
	r := newTestRouter("")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/tenants/t1/conversations/5511987654321", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin auth is unconfigured, got %d", rr.Code)
	}
}
