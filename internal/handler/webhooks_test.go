package handler_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/goalstash/goalstash/internal/handler"
	"github.com/goalstash/goalstash/internal/identity"
	"github.com/goalstash/goalstash/internal/webhooks"
)

type webhookEnv struct {
	router *gin.Engine
	tokens *identity.TokenIssuer
}

func setupWebhookRouter(t *testing.T) *webhookEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tokens := identity.NewTokenIssuer(key, "https://stash.test", time.Hour)

	svc := webhooks.NewService(webhooks.NewMemoryRepository(), zap.NewNop())
	h := handler.NewWebhookHandler(svc, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1", identity.RequireAccount(tokens))
	h.Register(v1)
	return &webhookEnv{router: r, tokens: tokens}
}

func (e *webhookEnv) do(t *testing.T, account, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := e.tokens.Issue(account)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestWebhookSubscribe_201(t *testing.T) {
	env := setupWebhookRouter(t)

	body := `{"url":"https://example.com/hook","events":["goal.set","money.taken"]}`
	w := env.do(t, "alice", http.MethodPost, "/api/v1/webhooks", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Secret       string                 `json:"secret"`
		Subscription *webhooks.Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Secret == "" {
		t.Error("expected a signing secret in the creation response")
	}
	if resp.Subscription.Account != "alice" {
		t.Errorf("account: got %q, want %q", resp.Subscription.Account, "alice")
	}
}

func TestWebhookSubscribe_400_badURL(t *testing.T) {
	env := setupWebhookRouter(t)

	body := `{"url":"not a url","events":["goal.set"]}`
	w := env.do(t, "alice", http.MethodPost, "/api/v1/webhooks", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookList_scopedToCaller(t *testing.T) {
	env := setupWebhookRouter(t)

	body := `{"url":"https://example.com/hook","events":["money.added"]}`
	if w := env.do(t, "alice", http.MethodPost, "/api/v1/webhooks", body); w.Code != http.StatusCreated {
		t.Fatalf("subscribe: %d", w.Code)
	}

	w := env.do(t, "bob", http.MethodGet, "/api/v1/webhooks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Subscriptions []*webhooks.Subscription `json:"subscriptions"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Subscriptions) != 0 {
		t.Errorf("bob's subscriptions: got %d, want 0", len(resp.Subscriptions))
	}
}

func TestWebhookDelete_ownershipEnforced(t *testing.T) {
	env := setupWebhookRouter(t)

	body := `{"url":"https://example.com/hook","events":["money.added"]}`
	w := env.do(t, "alice", http.MethodPost, "/api/v1/webhooks", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("subscribe: %d", w.Code)
	}
	var resp struct {
		Subscription *webhooks.Subscription `json:"subscription"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	id := resp.Subscription.ID.String()

	if w := env.do(t, "bob", http.MethodDelete, "/api/v1/webhooks/"+id, ""); w.Code != http.StatusForbidden {
		t.Fatalf("delete by non-owner: expected 403, got %d", w.Code)
	}
	if w := env.do(t, "alice", http.MethodDelete, "/api/v1/webhooks/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("delete by owner: expected 200, got %d", w.Code)
	}
	if w := env.do(t, "alice", http.MethodDelete, "/api/v1/webhooks/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete twice: expected 404, got %d", w.Code)
	}
}

func TestWebhookDelete_400_badID(t *testing.T) {
	env := setupWebhookRouter(t)

	w := env.do(t, "alice", http.MethodDelete, "/api/v1/webhooks/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
