package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garnizeh/medequip/api"
	dbfs "github.com/garnizeh/medequip/db"
	"github.com/garnizeh/medequip/internal/config"
	dbpkg "github.com/garnizeh/medequip/internal/db"
	"github.com/garnizeh/medequip/internal/metrics"
	sqlite "github.com/garnizeh/medequip/internal/repository/sqlite"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/session"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/repository/mock"
)

type testEnv struct {
	srv     *httptest.Server
	model   *mock.ChatModel
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	d, err := dbpkg.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations(), nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	schemas, err := schema.NewValidator(dbfs.Schemas, "schemas")
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}

	store := sqlite.New(d, nil)
	m := metrics.New()
	deps := service.Deps{
		Store:    store,
		Taxonomy: taxonomy.Default(),
		Schemas:  schemas,
		Metrics:  m,
	}
	model := &mock.ChatModel{Reply: "Check the pads."}

	handler := api.SetupRoutes(api.Deps{
		Config:      cfg,
		Equipment:   service.NewEquipmentService(deps),
		Maintenance: service.NewMaintenanceService(deps),
		Reports:     service.NewFailureReportService(deps),
		Assistant:   service.NewAssistantService(deps, model, session.NewMemoryStore(), config.AssistantConfig{Model: "test-model"}),
		Taxonomy:    deps.Taxonomy,
		Store:       store,
		Metrics:     m,
		Version:     "1.2.3",
		BuildTime:   "2024-03-01T00:00:00Z",
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, model: model, metrics: m}
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Message string          `json:"message"`
	Error   *apiError       `json:"error"`
}

type result struct {
	status int
	header http.Header
	raw    []byte
	env    envelope
}

// do sends body as JSON; string and []byte bodies are sent verbatim.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) result {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	res, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := result{status: res.StatusCode, header: res.Header, raw: raw}
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out.env); err != nil {
			t.Fatalf("decode envelope %s: %v", raw, err)
		}
	}
	return out
}

func (r result) expect(t *testing.T, status int) result {
	t.Helper()
	if r.status != status {
		t.Fatalf("expected status %d, got %d: %s", status, r.status, r.raw)
	}
	return r
}

func (r result) expectError(t *testing.T, status int, kind string) *apiError {
	t.Helper()
	r.expect(t, status)
	if r.env.Success || r.env.Error == nil {
		t.Fatalf("expected error envelope, got %s", r.raw)
	}
	if r.env.Error.Kind != kind {
		t.Fatalf("expected kind %q, got %q (%s)", kind, r.env.Error.Kind, r.raw)
	}
	return r.env.Error
}

func data[T any](t *testing.T, r result) T {
	t.Helper()
	var v T
	if !r.env.Success {
		t.Fatalf("expected success envelope, got %s", r.raw)
	}
	if err := json.Unmarshal(r.env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", r.env.Data, err)
	}
	return v
}

func count(t *testing.T, r result) int {
	t.Helper()
	if r.env.Count == nil {
		t.Fatalf("expected count in %s", r.raw)
	}
	return *r.env.Count
}

func equipmentBody(typ, serial string) map[string]any {
	return map[string]any{
		"type":             typ,
		"serialNo":         serial,
		"location":         "Emergency Room",
		"status":           "Operational",
		"installationDate": "2021-06-01T00:00:00Z",
		"manufacturer":     "Zoll",
		"modelType":        "R Series",
	}
}

func (e *testEnv) createEquipment(t *testing.T, typ, serial string) string {
	t.Helper()
	res := e.do(t, http.MethodPost, "/api/equipment", equipmentBody(typ, serial)).expect(t, http.StatusCreated)
	eq := data[struct {
		ID string `json:"id"`
	}](t, res)
	return eq.ID
}
