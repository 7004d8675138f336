package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"warnet-server-go/internal/domain/billing"
	"warnet-server-go/internal/domain/ledger"
	"warnet-server-go/internal/domain/ledger/store"
	"warnet-server-go/internal/domain/registry"
	platformtesting "warnet-server-go/internal/platform/testing"
	httptransport "warnet-server-go/internal/transport/http"
)

type apiFixture struct {
	engine   *gin.Engine
	ledger   *ledger.Service
	registry *registry.Registry
	token    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := platformtesting.SetupTestConfig(t)
	cfg.Admin.Token = "test-token"
	logger := platformtesting.SetupTestLogger(t)

	svc := ledger.NewService(store.NewMemory(), billing.NewTable(cfg.Tiers), logger)
	reg := registry.New(nil, logger)

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	api, err := NewService(cfg, logger, svc, reg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	api.Register(router.API)

	return &apiFixture{engine: router.Engine, ledger: svc, registry: reg, token: cfg.Admin.Token}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, authed bool) (*httptest.ResponseRecorder, httptransport.APIResponse) {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("AuthorToken", f.token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var resp httptransport.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, resp
}

func TestStatusIsOpen(t *testing.T) {
	f := newAPIFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/status", nil, false)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("unexpected status response: %d %+v", rec.Code, resp)
	}
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/users", nil, false)
	if rec.Code != http.StatusUnauthorized || resp.Success {
		t.Fatalf("expected 401, got %d %+v", rec.Code, resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("AuthorToken", "wrong")
	rec2 := httptest.NewRecorder()
	f.engine.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", rec2.Code)
	}
}

func TestUserLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec, resp := f.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": "alice", "password": "pw", "hours": 2, "pc_type": "Normal",
	}, true)
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("create failed: %d %+v", rec.Code, resp)
	}

	rec, resp = f.do(t, http.MethodGet, "/api/users/alice", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["balance_minutes"].(float64) != 120 {
		t.Fatalf("expected 120 minutes, got %v", data["balance_minutes"])
	}

	rec, _ = f.do(t, http.MethodDelete, "/api/users/alice", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}

	rec, resp = f.do(t, http.MethodDelete, "/api/users/alice", nil, true)
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400 for missing user, got %d %+v", rec.Code, resp)
	}
}

func TestAddBalanceReturnsPrice(t *testing.T) {
	f := newAPIFixture(t)

	if _, resp := f.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": "bob", "password": "pw", "hours": 1, "pc_type": "VIP",
	}, true); !resp.Success {
		t.Fatalf("create failed: %+v", resp)
	}

	rec, resp := f.do(t, http.MethodPost, "/api/users/bob/balance", map[string]any{
		"hours": 2, "pc_type": "VIP",
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("add balance failed: %d %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["price"].(float64) != 10000 {
		t.Fatalf("expected price 10000, got %v", data["price"])
	}
}

func TestAddBalanceValidation(t *testing.T) {
	f := newAPIFixture(t)

	if _, resp := f.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": "carol", "password": "pw", "hours": 1, "pc_type": "Normal",
	}, true); !resp.Success {
		t.Fatalf("create failed: %+v", resp)
	}

	rec, resp := f.do(t, http.MethodPost, "/api/users/carol/balance", map[string]any{
		"hours": -1, "pc_type": "Normal",
	}, true)
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400 for negative hours, got %d %+v", rec.Code, resp)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/users/carol/balance", map[string]any{
		"hours": 1, "pc_type": "Platinum",
	}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown tier, got %d", rec.Code)
	}
}

func TestQuoteAndTiers(t *testing.T) {
	f := newAPIFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/quote?hours=1.5&pc_type=Gamer", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("quote failed: %d %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["price"].(float64) != 9000 {
		t.Fatalf("expected price 9000, got %v", data["price"])
	}

	rec, resp = f.do(t, http.MethodGet, "/api/tiers", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("tiers failed: %d", rec.Code)
	}
	tiers := resp.Data.([]any)
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
}

func TestClientsAndSummary(t *testing.T) {
	f := newAPIFixture(t)

	f.registry.Register("c1", "10.0.0.2", "pc-02")
	if err := f.ledger.AddUser(context.Background(), "dave", "pw", 1, "Normal"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, resp := f.do(t, http.MethodGet, "/api/clients", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("clients failed: %d", rec.Code)
	}
	if clients := resp.Data.([]any); len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}

	rec, resp = f.do(t, http.MethodGet, "/api/summary", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary failed: %d", rec.Code)
	}
	data := resp.Data.(map[string]any)
	if data["connected_clients"].(float64) != 1 {
		t.Fatalf("expected 1 connected client, got %v", data["connected_clients"])
	}
	if data["total_users"].(float64) != 1 {
		t.Fatalf("expected 1 user, got %v", data["total_users"])
	}
}

func TestSessionListValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/sessions?limit=abc", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec, resp := f.do(t, http.MethodGet, "/api/sessions", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions failed: %d %+v", rec.Code, resp)
	}
}
