package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/scrollterm/internal/scrollback"
	"github.com/user/scrollterm/internal/term"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *scrollback.Registry, *term.Backend) {
	t.Helper()
	registry, err := scrollback.NewRegistry(10)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	backend := term.NewBackend(registry)
	t.Cleanup(backend.Close)

	srv := httptest.NewServer(NewRouter(backend, nil, token, "/bin/sh"))
	t.Cleanup(srv.Close)
	return srv, registry, backend
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Bearer nope", "", http.StatusUnauthorized},
		{"valid bearer", "Bearer secret", "", http.StatusOK},
		{"valid query token", "", "?token=secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions"+tt.query, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGetScrollback(t *testing.T) {
	srv, registry, _ := newTestServer(t, "")
	registry.GetOrCreate("s1").AppendText("one\ntwo\nthree\npart")

	var body scrollbackResponse
	status := getJSON(t, srv.URL+"/api/sessions/s1/scrollback", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(body.Lines) != 3 || body.Lines[0] != "one" || body.Lines[2] != "three" {
		t.Errorf("lines = %v, want [one two three]", body.Lines)
	}
	if body.Partial != "part" {
		t.Errorf("partial = %q, want part", body.Partial)
	}
	if body.LineCount != 3 {
		t.Errorf("line_count = %d, want 3", body.LineCount)
	}
}

func TestGetScrollbackLimited(t *testing.T) {
	srv, registry, _ := newTestServer(t, "")
	registry.GetOrCreate("s1").AppendText("a\nb\nc\nd\n")

	var body scrollbackResponse
	getJSON(t, srv.URL+"/api/sessions/s1/scrollback?lines=2", &body)
	if len(body.Lines) != 2 || body.Lines[0] != "c" || body.Lines[1] != "d" {
		t.Errorf("lines = %v, want [c d]", body.Lines)
	}
}

func TestGetScrollbackUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	status := getJSON(t, srv.URL+"/api/sessions/nope/scrollback", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestGetScrollbackBadQuery(t *testing.T) {
	srv, registry, _ := newTestServer(t, "")
	registry.GetOrCreate("s1")
	status := getJSON(t, srv.URL+"/api/sessions/s1/scrollback?lines=abc", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestScrollbackBeforePaging(t *testing.T) {
	srv, registry, _ := newTestServer(t, "")
	registry.GetOrCreate("s1").AppendText("l0\nl1\nl2\nl3\nl4\n")

	var body scrollbackPageResponse
	getJSON(t, srv.URL+"/api/sessions/s1/scrollback/before?index=4&count=2", &body)
	if body.StartIndex != 2 {
		t.Errorf("start_index = %d, want 2", body.StartIndex)
	}
	if len(body.Lines) != 2 || body.Lines[0] != "l2" || body.Lines[1] != "l3" {
		t.Errorf("lines = %v, want [l2 l3]", body.Lines)
	}

	// Page again from the returned anchor until the front is reached.
	getJSON(t, srv.URL+"/api/sessions/s1/scrollback/before?index=2&count=10", &body)
	if body.StartIndex != 0 {
		t.Errorf("start_index = %d, want 0", body.StartIndex)
	}
	if len(body.Lines) != 2 || body.Lines[0] != "l0" {
		t.Errorf("lines = %v, want [l0 l1]", body.Lines)
	}
}

func TestScrollbackStats(t *testing.T) {
	srv, registry, _ := newTestServer(t, "")
	registry.GetOrCreate("s1").AppendText("ab\ncd")

	var stats scrollback.Stats
	getJSON(t, srv.URL+"/api/sessions/s1/scrollback/stats", &stats)
	if stats.LineCount != 1 {
		t.Errorf("line_count = %d, want 1", stats.LineCount)
	}
	if stats.EstimatedBytes != 10 {
		t.Errorf("estimated_bytes = %d, want 10", stats.EstimatedBytes)
	}
}

// DELETE must work on a session whose process already exited: teardown is the
// only way its scrollback buffer is ever released.
func TestDeleteExitedSession(t *testing.T) {
	srv, registry, backend := newTestServer(t, "")
	ctx := context.Background()

	id, err := backend.CreateSession(ctx, "short-lived", "true", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for backend.SessionExists(ctx, id) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if backend.SessionExists(ctx, id) {
		t.Fatal("session never exited")
	}
	if registry.Get(id) == nil {
		t.Fatal("scrollback buffer should survive process exit")
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+id, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	if registry.Get(id) != nil {
		t.Error("scrollback buffer still registered after delete")
	}
	if backend.HasSession(id) {
		t.Error("session still tracked after delete")
	}
}

func TestSendInputUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/api/sessions/nope/input", "application/json",
		strings.NewReader(`{"data":"ls\n"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResizeValidation(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/api/sessions/s1/resize", "application/json",
		strings.NewReader(`{"cols":0,"rows":24}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateSessionRejectsBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"bogus":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
