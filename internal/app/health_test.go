package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lens/api/internal/store"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(t), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	server := NewHTTPServer(newTestService(t), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", response["status"])
	}
	checks, _ := response["checks"].(map[string]any)
	storeCheck, _ := checks["store"].(map[string]any)
	if storeCheck["status"] != "ok" {
		t.Errorf("expected store status ok, got %v", storeCheck)
	}
}

func TestReadyEndpoint_StoreDown(t *testing.T) {
	kv := &pingKV{MemoryKV: store.NewMemoryKV(), pingErr: errors.New("connection refused")}
	server := NewHTTPServer(newTestServiceWithKV(t, kv), "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["ok"] != false || response["status"] != "not_ready" {
		t.Errorf("unexpected response: %v", response)
	}
	checks, _ := response["checks"].(map[string]any)
	storeCheck, _ := checks["store"].(map[string]any)
	if storeCheck["error"] != "connection refused" {
		t.Errorf("expected store error, got %v", storeCheck)
	}
}

func TestHealthEndpoint_HEAD(t *testing.T) {
	server := NewHTTPServer(newTestService(t), "*")

	req := httptest.NewRequest(http.MethodHead, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for HEAD, got %d", rr.Code)
	}
}

func TestMiddlewareSetsHeaders(t *testing.T) {
	server := NewHTTPServer(newTestService(t), "https://reader.example")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://reader.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rr.Header().Get("X-Request-ID"); len(got) != 16 {
		t.Errorf("generated request id = %q", got)
	}

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/annotations", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d", rr.Code)
	}
}
