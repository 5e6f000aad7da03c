package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goalstash/goalstash/pkg/client"
)

// fakeServer returns a test server that replies with status and body for
// every request, capturing the last request seen.
func fakeServer(status int, body string, last *http.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if last != nil {
			*last = *r
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestSetGoal_sendsBearerToken(t *testing.T) {
	var got http.Request
	srv := fakeServer(http.StatusOK, `{"account":"alice","goal":100}`, &got)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok123"))
	if err := c.SetGoal(context.Background(), 100); err != nil {
		t.Fatalf("SetGoal() error: %v", err)
	}

	if auth := got.Header.Get("Authorization"); auth != "Bearer tok123" {
		t.Errorf("Authorization header: got %q", auth)
	}
	if got.Method != http.MethodPut || got.URL.Path != "/api/v1/goal" {
		t.Errorf("request: got %s %s", got.Method, got.URL.Path)
	}
}

func TestSetGoal_mapsConflict(t *testing.T) {
	srv := fakeServer(http.StatusConflict, `{"error":"goal must strictly increase"}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))
	if err := c.SetGoal(context.Background(), 50); !errors.Is(err, client.ErrInvalidGoalUpdate) {
		t.Errorf("got %v, want ErrInvalidGoalUpdate", err)
	}
}

func TestAddMoney_decodesResult(t *testing.T) {
	srv := fakeServer(http.StatusCreated, `{"account":"alice","amount":60,"balance":120}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))
	res, err := c.AddMoney(context.Background(), 60)
	if err != nil {
		t.Fatalf("AddMoney() error: %v", err)
	}
	if res.Balance != 120 || res.Amount != 60 {
		t.Errorf("result: %+v", res)
	}
}

func TestAddMoney_mapsConflict(t *testing.T) {
	srv := fakeServer(http.StatusConflict, `{"error":"deposit not admissible"}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))
	if _, err := c.AddMoney(context.Background(), 10); !errors.Is(err, client.ErrDepositNotAdmissible) {
		t.Errorf("got %v, want ErrDepositNotAdmissible", err)
	}
}

func TestWithdraw_mapsConflict(t *testing.T) {
	srv := fakeServer(http.StatusConflict, `{"error":"withdrawal not eligible"}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))
	if _, err := c.Withdraw(context.Background()); !errors.Is(err, client.ErrWithdrawalNotEligible) {
		t.Errorf("got %v, want ErrWithdrawalNotEligible", err)
	}
}

func TestBalance_parsesField(t *testing.T) {
	srv := fakeServer(http.StatusOK, `{"account":"alice","balance":42}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))
	n, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if n != 42 {
		t.Errorf("balance: got %d, want 42", n)
	}
}

func TestGoal_unauthorizedWithoutToken(t *testing.T) {
	srv := fakeServer(http.StatusUnauthorized, `{"error":"Bearer token required"}`, nil)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	if _, err := c.Goal(context.Background()); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestMintToken_installsToken(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/tokens":
			json.NewEncoder(w).Encode(map[string]any{"token": "minted", "token_type": "Bearer"})
		case "/api/v1/balance":
			if r.Header.Get("Authorization") != "Bearer minted" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"account": "alice", "balance": 0})
		}
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)
	tok, err := c.MintToken(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("MintToken() error: %v", err)
	}
	if tok != "minted" {
		t.Errorf("token: got %q", tok)
	}

	// Subsequent calls carry the minted token.
	if _, err := c.Balance(context.Background()); err != nil {
		t.Errorf("Balance() after mint: %v", err)
	}
	if calls != 2 {
		t.Errorf("requests: got %d, want 2", calls)
	}
}
