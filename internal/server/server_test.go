package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnishGupta/deepr/executor"
)

type testRoot struct {
	Title string `json:"title"`
}

func (r *testRoot) Greet(name string) string { return "hello " + name }

func (r *testRoot) WhoAmI(cc any) any { return cc }

func postJSON(h http.Handler, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid response body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSingleQuery(t *testing.T) {
	h := New(&testRoot{Title: "Inception"})
	w := postJSON(h, `{"query": {"title": true}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	res, ok := out["result"].(map[string]any)
	if !ok || res["title"] != "Inception" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestMethodCall(t *testing.T) {
	h := New(&testRoot{})
	w := postJSON(h, `{"query": {"greet=>greeting": {"()": ["ada"]}}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	res := out["result"].(map[string]any)
	if res["greeting"] != "hello ada" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestRequestContextReachesCalls(t *testing.T) {
	h := New(&testRoot{})
	w := postJSON(h, `{"query": {"whoAmI=>me": {"()": []}}, "context": {"user": "u1"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	me := out["result"].(map[string]any)["me"].(map[string]any)
	if me["user"] != "u1" {
		t.Fatalf("context not forwarded: %v", out)
	}
}

func TestBatchRequests(t *testing.T) {
	h := New(&testRoot{Title: "Inception"})
	w := postJSON(h, `[{"query": {"title": true}}, {"query": {"missing": true}}]`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("batch status %d: %s", w.Code, w.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid batch body: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(out))
	}
	first := out[0]["result"].(map[string]any)
	if first["title"] != "Inception" {
		t.Fatalf("unexpected first response: %v", out[0])
	}
	if _, ok := out[1]["result"]; !ok {
		t.Fatalf("expected a result member in second response: %v", out[1])
	}
}

func TestAuthorizerDenial(t *testing.T) {
	xopts := &executor.Options{
		Authorizer: func(ctx context.Context, key string, op executor.Operation, params []any) any {
			return key != "title"
		},
	}
	h := New(&testRoot{Title: "secret"}, WithExecutorOptions(xopts))
	w := postJSON(h, `{"query": {"title": true}}`, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	e := out["error"].(map[string]any)
	if e["code"] != "permission_denied" {
		t.Fatalf("unexpected error code: %v", out)
	}
}

func TestMissingQuery(t *testing.T) {
	h := New(&testRoot{})
	w := postJSON(h, `{"context": {}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestInvalidQueryGrammar(t *testing.T) {
	h := New(&testRoot{})
	w := postJSON(h, `{"query": {"title": false}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	out := decodeBody(t, w)
	e := out["error"].(map[string]any)
	if e["code"] != "invalid_argument" {
		t.Fatalf("unexpected error code: %v", out)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := New(&testRoot{}, WithMaxBodyBytes(10))
	w := postJSON(h, `{"query": {"title": true}}`, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := New(&testRoot{Title: "x"}, WithCORS("*"))

	w := postJSON(h, `{"query": {"title": true}}`, map[string]string{"Origin": "http://example.com"})
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := New(&testRoot{Title: "x"})
	w := postJSON(h, `{"query": {"title": true}}`, nil)
	if rid := w.Header().Get("Deepr-Request-Id"); rid == "" {
		t.Fatalf("missing request id header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(&testRoot{})
	req := httptest.NewRequest("GET", "/?query=%7B%7D", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestOrderedResultKeys(t *testing.T) {
	h := New(&testRoot{Title: "x"})
	w := postJSON(h, `{"query": {"whoAmI=>b": {"()": []}, "title=>a": true}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	bi := strings.Index(body, `"b"`)
	ai := strings.Index(body, `"a"`)
	if bi == -1 || ai == -1 || bi > ai {
		t.Fatalf("result keys not in query order: %s", body)
	}
}
