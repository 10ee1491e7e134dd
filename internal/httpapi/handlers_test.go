// Copyright 2025 James Ross
package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gwbischof/starq/internal/config"
	"github.com/gwbischof/starq/internal/queuecore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func testServer(t *testing.T, apiKeys []string) (*Server, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := queuecore.NewStore(client, nil, zap.NewNop(), queuecore.WithJobMetaTTL(0))

	cfg := &config.Config{
		Queue: config.Queue{
			DefaultMaxRetries:   3,
			DefaultClaimTimeout: 300 * time.Second,
			SubmitBatchMax:      1000,
		},
		Auth: config.Auth{APIKeys: apiKeys},
		HTTP: config.HTTP{RateLimitPerSec: 0},
	}
	srv := NewServer(cfg, store, nil, zap.NewNop())
	return srv, func() {
		client.Close()
		mr.Close()
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := testServer(t, nil)
	defer cleanup()

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp)
	}
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := testServer(t, nil)
	defer cleanup()
	h := srv.Router()

	w := doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "http-q"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "http-q"}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/queues/http-q", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/queues/missing", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/queues/http-q", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/queues/http-q", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete again: expected 404, got %d", w.Code)
	}
}

func TestSubmitClaimCompleteFailOverHTTP(t *testing.T) {
	srv, cleanup := testServer(t, nil)
	defer cleanup()
	h := srv.Router()

	doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "hq2", "max_retries": 1}, "")

	w := doJSON(t, h, http.MethodPost, "/api/v1/queues/hq2/jobs", map[string]interface{}{
		"jobs": []map[string]interface{}{
			{"payload": map[string]interface{}{"a": 1}},
			{"payload": map[string]interface{}{"b": 2}},
		},
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var submitResp struct {
		Submitted int `json:"submitted"`
		Skipped   int `json:"skipped"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if submitResp.Submitted != 2 || submitResp.Skipped != 0 {
		t.Fatalf("unexpected submit result: %+v", submitResp)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/queues/hq2/jobs/claim", map[string]interface{}{"count": 2}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var claimResp struct {
		Jobs []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &claimResp); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if len(claimResp.Jobs) != 2 {
		t.Fatalf("expected 2 claimed jobs, got %d", len(claimResp.Jobs))
	}

	w = doJSON(t, h, http.MethodPut, "/api/v1/queues/hq2/jobs/"+claimResp.Jobs[0].ID+"/complete",
		map[string]interface{}{"result": map[string]interface{}{"ok": true}}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPut, "/api/v1/queues/hq2/jobs/"+claimResp.Jobs[1].ID+"/fail",
		map[string]interface{}{"error": "boom"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("fail: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/queues/hq2", nil, "")
	var info struct {
		Completed int64 `json:"completed"`
	}
	json.Unmarshal(w.Body.Bytes(), &info)
	if info.Completed != 1 {
		t.Fatalf("expected 1 completed job, got %+v", info)
	}
}

func TestListJobsOverHTTP(t *testing.T) {
	srv, cleanup := testServer(t, nil)
	defer cleanup()
	h := srv.Router()

	doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "hq3"}, "")
	jobs := make([]map[string]interface{}, 5)
	for i := range jobs {
		jobs[i] = map[string]interface{}{"payload": map[string]interface{}{"i": i}}
	}
	doJSON(t, h, http.MethodPost, "/api/v1/queues/hq3/jobs", map[string]interface{}{"jobs": jobs}, "")

	w := doJSON(t, h, http.MethodGet, "/api/v1/queues/hq3/jobs?count=3", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var page struct {
		Jobs    []json.RawMessage `json:"jobs"`
		HasMore bool              `json:"has_more"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Jobs) != 3 || !page.HasMore {
		t.Fatalf("expected a short first page with more remaining, got %d jobs has_more=%v", len(page.Jobs), page.HasMore)
	}
}

func TestClaimZeroCountReturnsEmptyOverHTTP(t *testing.T) {
	srv, cleanup := testServer(t, nil)
	defer cleanup()
	h := srv.Router()

	doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "hq4"}, "")
	doJSON(t, h, http.MethodPost, "/api/v1/queues/hq4/jobs", map[string]interface{}{
		"payload": map[string]interface{}{"x": 1},
	}, "")

	w := doJSON(t, h, http.MethodPost, "/api/v1/queues/hq4/jobs/claim", map[string]interface{}{"count": 0}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 0 {
		t.Fatalf("expected count=0 to claim nothing, got %d jobs", len(resp.Jobs))
	}
}

func TestAuthRequiredForMutatingRoutes(t *testing.T) {
	srv, cleanup := testServer(t, []string{"topsecret"})
	defer cleanup()
	h := srv.Router()

	w := doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "auth-q"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/queues", map[string]interface{}{"name": "auth-q"}, "topsecret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct key, got %d: %s", w.Code, w.Body.String())
	}

	// Reads remain open even with an API key configured.
	w = doJSON(t, h, http.MethodGet, "/api/v1/queues", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected GET to bypass auth, got %d", w.Code)
	}
}
