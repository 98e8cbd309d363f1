package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/ollama"
)

// writeSequence writes each object as a JSON line and flushes, the way
// Ollama streams responses.
func writeSequence(w http.ResponseWriter, seq ...map[string]any) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, obj := range seq {
		_ = enc.Encode(obj)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func newClient(t *testing.T, srv *httptest.Server, cfg config.OllamaConfig) *ollama.Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	c, err := ollama.NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	if _, err := ollama.NewClient(config.OllamaConfig{BaseURL: "not a url"}, nil); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}

func TestClient_ListModelsAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2","size":2019393189}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{})
	list, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(list) != 1 || list[0].Name != "llama3.2" || list[0].Size != 2019393189 {
		t.Fatalf("unexpected models: %#v", list)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestClient_Health_NoModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{})
	if err := c.Health(context.Background()); err == nil {
		t.Fatalf("expected Health to fail without models")
	}
}

func TestClient_Generate_AccumulatesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		writeSequence(w,
			map[string]any{"model": "m", "response": "Check the ", "done": false},
			map[string]any{"model": "m", "response": "pump.", "done": true},
		)
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{})
	res, err := c.Generate(context.Background(), "m", "why does the pump beep?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "Check the pump." {
		t.Fatalf("Text = %q", res.Text)
	}
	if _, ok := res.Meta["latency_ms"]; !ok {
		t.Fatalf("expected latency_ms in meta: %#v", res.Meta)
	}
	if !strings.Contains(string(res.Raw), `"done":true`) {
		t.Fatalf("Raw should hold the final frame: %s", res.Raw)
	}
}

func TestClient_Generate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{ this is : not json \n"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newClient(t, srv, config.OllamaConfig{})
			if _, err := c.Generate(context.Background(), "m", "p"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestClient_Generate_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, `{"error":"temporary"}`, http.StatusInternalServerError)
			return
		}
		writeSequence(w, map[string]any{"response": "ok", "done": true})
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{Retries: 2, Backoff: 10 * time.Millisecond, CircuitFailureThreshold: 10})
	res, err := c.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("Text = %q", res.Text)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, `{"error":"permanent"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{Backoff: time.Millisecond, CircuitFailureThreshold: 2, CircuitReset: time.Minute})
	for i := range 2 {
		_, err := c.Generate(context.Background(), "m", "p")
		if err == nil || errors.Is(err, ollama.ErrCircuitOpen) {
			t.Fatalf("call %d: expected plain failure, got %v", i+1, err)
		}
	}

	if _, err := c.Generate(context.Background(), "m", "p"); !errors.Is(err, ollama.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("open circuit must not reach the server, attempts = %d", got)
	}
}

func TestClient_Chat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeSequence(w, map[string]any{
			"model":   got.Model,
			"message": map[string]any{"role": "assistant", "content": "Replace the filter."},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{})
	reply, err := c.Chat(context.Background(), "llama3.2", []models.ChatMessage{
		{Role: models.RoleSystem, Content: "You are a technician."},
		{Role: models.RoleUser, Content: "The ventilator alarms."},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "Replace the filter." {
		t.Fatalf("reply = %q", reply)
	}
	if got.Model != "llama3.2" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Stream == nil || *got.Stream {
		t.Fatalf("chat should disable streaming")
	}
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv, config.OllamaConfig{Timeout: 50 * time.Millisecond})
	_, err := c.Chat(context.Background(), "m", []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := ollama.RenderTemplate(`{{.ID}}: {{join .Issues ", "}}`, map[string]any{
		"ID":     "DEF_123456",
		"Issues": []string{"No shock delivered", "Battery failure"},
	})
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "DEF_123456: No shock delivered, Battery failure" {
		t.Fatalf("out = %q", out)
	}

	if _, err := ollama.RenderTemplate(`{{.Missing}}`, map[string]any{}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
