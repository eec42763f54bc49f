package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/chartgpt"
	"github.com/chartgpt/chartgpt/internal/codegen"
	"github.com/chartgpt/chartgpt/internal/config"
	"github.com/chartgpt/chartgpt/internal/history"
	"github.com/chartgpt/chartgpt/internal/query"
	"github.com/chartgpt/chartgpt/internal/storage/local"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "chartgpt-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if decodeBody(t, rr)["error_code"] != "NOT_READY" {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestReadinessChecksForConfig(t *testing.T) {
	cfg := loadConfig(t, nil)
	if err := CheckLLMConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing api key to fail readiness")
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("local object store should be ready: %v", err)
	}
	cfg.ObjectStore.Backend = config.ObjectStoreS3
	cfg.ObjectStore.Endpoint = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing s3 endpoint to fail readiness")
	}
	if err := CheckHistory(history.NewMemory(0))(context.Background()); err != nil {
		t.Fatalf("memory history should be ready: %v", err)
	}
}

func TestAskAndPlotFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/datasets", "text/csv", "country,revenue\nUS,100\nDE,70\nUS,50\n", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", rr.Code, rr.Body.String())
	}
	loaded := decodeBody(t, rr)
	if loaded["row_count"] != float64(3) || loaded["source"] != "upload" {
		t.Fatalf("load body = %v", loaded)
	}
	if key, _ := loaded["object_key"].(string); !strings.HasPrefix(key, "uploads/default/date=2026-05-01/") {
		t.Fatalf("object_key = %v", loaded["object_key"])
	}
	if loaded["loaded_at"] != "2026-05-01T12:00:00Z" {
		t.Fatalf("loaded_at = %v, want the handler clock", loaded["loaded_at"])
	}
	if len(env.engine.requests) != 1 || env.engine.requests[0].Files[0].TableName != "df" {
		t.Fatalf("engine requests = %+v", env.engine.requests)
	}

	env.generator.setReply("<startCode>df.revenue.sum()<endCode>")
	rr = env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"Total revenue?"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body = %s", rr.Code, rr.Body.String())
	}
	asked := decodeBody(t, rr)
	if asked["kind"] != "value" || asked["value"] != float64(220) || asked["text"] != "220" {
		t.Fatalf("ask body = %v", asked)
	}
	if asked["run_id"] != float64(1) || asked["attempts"] != float64(1) {
		t.Fatalf("ask run metadata = %v", asked)
	}

	env.generator.setReply("Here you go:\n<startCode>\nfig = px.bar(df, x=\"country\", y=\"revenue\")\nfig\n<endCode>")
	rr = env.do(t, http.MethodPost, "/v1/plot", "application/json", `{"question":"Revenue by country"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("plot status = %d, body = %s", rr.Code, rr.Body.String())
	}
	plotted := decodeBody(t, rr)
	if plotted["artifact_key"] != "charts/default/run-0000000002.html" {
		t.Fatalf("artifact_key = %v", plotted["artifact_key"])
	}
	value, _ := plotted["value"].(map[string]any)
	if _, ok := value["data"]; !ok {
		t.Fatalf("plot value = %v", plotted["value"])
	}

	rr = env.do(t, http.MethodGet, "/v1/charts/2", "", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Plotly.newPlot") {
		t.Fatalf("chart status = %d, body = %.200s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/runs?limit=5", "", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("runs status = %d", rr.Code)
	}
	runs := decodeBody(t, rr)
	if runs["count"] != float64(2) {
		t.Fatalf("runs body = %v", runs)
	}
	first := runs["runs"].([]any)[0].(map[string]any)
	if first["mode"] != "plot" || first["artifact_key"] != "charts/default/run-0000000002.html" {
		t.Fatalf("newest run = %v", first)
	}

	rr = env.do(t, http.MethodGet, "/v1/runs/last", "", "", nil)
	last := decodeBody(t, rr)
	if rr.Code != http.StatusOK || !strings.Contains(last["prompt"].(string), "country, revenue") {
		t.Fatalf("last run status = %d, body = %v", rr.Code, last)
	}

	rr = env.do(t, http.MethodGet, "/v1/objects", "", "", nil)
	objects := decodeBody(t, rr)["objects"].([]any)
	if len(objects) != 2 {
		t.Fatalf("objects = %v", objects)
	}

	rr = env.do(t, http.MethodGet, "/v1/datasets", "", "", nil)
	current := decodeBody(t, rr)
	if rr.Code != http.StatusOK || current["source"] != "upload" || len(current["columns"].([]any)) != 2 {
		t.Fatalf("dataset status = %d, body = %v", rr.Code, current)
	}
}

func TestAskBeforeLoadReturnsConflict(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"How many rows?"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
	if decodeBody(t, rr)["error_code"] != "DATASET_NOT_LOADED" {
		t.Fatalf("body = %s", rr.Body.String())
	}
	if env.generator.calls() != 0 {
		t.Fatal("generator should not be called before load")
	}

	rr = env.do(t, http.MethodGet, "/v1/datasets", "", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("dataset status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	rr = env.do(t, http.MethodGet, "/v1/runs/last", "", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("last run status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRunFailuresMapByPhase(t *testing.T) {
	env := newTestEnv(t, nil)
	env.load(t)

	env.generator.setError(&codegen.GenerationError{Backend: "openai", StatusCode: http.StatusTooManyRequests, Retryable: true, Err: errors.New("rate limited")})
	rr := env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"Total?"}`, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("generation status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "GENERATION_FAILED" || body["retryable"] != true {
		t.Fatalf("generation body = %v", body)
	}

	env.generator.setReply("<startCode>x = 1\ny = missing_name\ny<endCode>")
	rr = env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"Broken"}`, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("execution status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	body = decodeBody(t, rr)
	details := body["context"].(map[string]any)
	if body["error_code"] != "EXECUTION_FAILED" || details["line"] != float64(2) || details["attempts"] != float64(1) {
		t.Fatalf("execution body = %v", body)
	}

	rr = env.do(t, http.MethodGet, "/v1/runs", "", "", nil)
	runs := decodeBody(t, rr)["runs"].([]any)
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].(map[string]any)["status"] != "execute" || runs[1].(map[string]any)["status"] != "generate" {
		t.Fatalf("runs = %v", runs)
	}
}

func TestQuestionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{`{"question":"  "}`, `{"q":"x"}`, `not json`} {
		rr := env.do(t, http.MethodPost, "/v1/plot", "application/json", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want %d", body, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestDatasetLoadErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
		code        string
	}{
		{name: "missing key", contentType: "application/json", body: `{}`, want: http.StatusBadRequest, code: "OBJECT_KEY_REQUIRED"},
		{name: "bad format", contentType: "application/json", body: `{"object_key":"uploads/default/x.xlsx","format":"xlsx"}`, want: http.StatusBadRequest, code: "FORMAT_UNSUPPORTED"},
		{name: "unknown object", contentType: "application/json", body: `{"object_key":"uploads/default/missing.csv"}`, want: http.StatusNotFound, code: "OBJECT_NOT_FOUND"},
		{name: "empty upload", contentType: "text/csv; charset=utf-8", body: ``, want: http.StatusBadRequest, code: "UPLOAD_EMPTY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/v1/datasets", tt.contentType, tt.body, nil)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.want, rr.Body.String())
			}
			if decodeBody(t, rr)["error_code"] != tt.code {
				t.Fatalf("body = %s", rr.Body.String())
			}
		})
	}
}

func TestListRunsAndObjectsValidateInput(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/v1/runs?limit=0", "/v1/runs?limit=abc", "/v1/runs?limit=501"} {
		rr := env.do(t, http.MethodGet, path, "", "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want %d", path, rr.Code, http.StatusBadRequest)
		}
	}
	for _, prefix := range []string{"uploads/other/", "charts/default/../../x", "secrets/"} {
		rr := env.do(t, http.MethodGet, "/v1/objects?prefix="+prefix, "", "", nil)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("prefix %q: status = %d, want %d", prefix, rr.Code, http.StatusForbidden)
		}
	}
	rr := env.do(t, http.MethodGet, "/v1/charts/0", "", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("chart status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSessionsAreIsolatedPerTenant(t *testing.T) {
	env := newTestEnv(t, nil)
	env.load(t)

	rr := env.do(t, http.MethodGet, "/v1/datasets", "", "", map[string]string{"X-Tenant-ID": "globex"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other tenant dataset status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	rr = env.do(t, http.MethodGet, "/v1/datasets", "", "", map[string]string{"X-Tenant-ID": "../etc"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid tenant status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if env.sessions.Len() != 2 {
		t.Fatalf("sessions = %d, want 2", env.sessions.Len())
	}
}

func TestDatasetLoadRejectsOtherTenantKeys(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/v1/datasets", "text/csv", "country,revenue\nUS,100\n", map[string]string{"X-Tenant-ID": "acme"})
	if rr.Code != http.StatusOK {
		t.Fatalf("acme upload status = %d, body = %s", rr.Code, rr.Body.String())
	}
	acmeKey, _ := decodeBody(t, rr)["object_key"].(string)
	if !strings.HasPrefix(acmeKey, "uploads/acme/") {
		t.Fatalf("object_key = %q", acmeKey)
	}

	for _, key := range []string{acmeKey, "uploads/globex/../acme/" + strings.TrimPrefix(acmeKey, "uploads/acme/"), "charts/globex/run-0000000001.html", "uploads/globexx/a.csv"} {
		body, _ := json.Marshal(map[string]string{"object_key": key})
		rr = env.do(t, http.MethodPost, "/v1/datasets", "application/json", string(body), map[string]string{"X-Tenant-ID": "globex"})
		if rr.Code != http.StatusForbidden {
			t.Fatalf("key %q: status = %d, want %d, body = %s", key, rr.Code, http.StatusForbidden, rr.Body.String())
		}
		if decodeBody(t, rr)["error_code"] != "OBJECT_KEY_NOT_ALLOWED" {
			t.Fatalf("key %q: body = %s", key, rr.Body.String())
		}
	}

	body, _ := json.Marshal(map[string]string{"object_key": acmeKey})
	rr = env.do(t, http.MethodPost, "/v1/datasets", "application/json", string(body), map[string]string{"X-Tenant-ID": "acme"})
	if rr.Code != http.StatusOK {
		t.Fatalf("own key status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestProtectedRoutesRequireAuthAndRole(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("k-analyst:acme:analyst,k-viewer:acme:viewer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	env := newTestEnv(t, map[string]string{"CHARTGPT_AUTH_REQUIRED": "true"}, func(deps *Dependencies) {
		deps.AuthMiddleware = auth.Middleware(nil, validator)
	})

	rr := env.do(t, http.MethodGet, "/v1/runs", "", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"x"}`, map[string]string{"X-API-Key": "k-viewer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer ask status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = env.do(t, http.MethodGet, "/v1/runs", "", "", map[string]string{"X-API-Key": "k-viewer", "X-Tenant-ID": "globex"})
	if rr.Code != http.StatusOK {
		t.Fatalf("viewer runs status = %d", rr.Code)
	}
	if decodeBody(t, rr)["tenant_id"] != "acme" {
		t.Fatalf("identity tenant should win over header: %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/v1/ask", "application/json", `{"question":"x"}`, map[string]string{"X-API-Key": "k-analyst"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("analyst ask status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{"CHARTGPT_AUTH_REQUIRED": "true"}), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

type testEnv struct {
	handler   http.Handler
	generator *fakeGenerator
	engine    *fakeQueryEngine
	sessions  *Sessions
}

func newTestEnv(t *testing.T, values map[string]string, mutate ...func(*Dependencies)) *testEnv {
	t.Helper()
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	now := func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	generator := &fakeGenerator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := NewSessions(func(string) (*chartgpt.ChartGPT, error) {
		return chartgpt.New(
			chartgpt.WithGenerator(generator),
			chartgpt.WithLogger(logger),
			chartgpt.WithClock(now),
		)
	})
	engine := &fakeQueryEngine{result: query.Result{
		Columns: []string{"country", "revenue"},
		Rows:    [][]any{{"US", int64(100)}, {"DE", int64(70)}, {"US", int64(50)}},
	}}
	deps := Dependencies{
		Sessions:    sessions,
		QueryEngine: engine,
		ObjectStore: store,
		History:     history.NewMemory(0, history.WithMemoryClock(now)),
		Now:         now,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	return &testEnv{
		handler:   NewHandler(loadConfig(t, values), deps),
		generator: generator,
		engine:    engine,
		sessions:  sessions,
	}
}

func (e *testEnv) load(t *testing.T) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/datasets", "text/csv", "country,revenue\nUS,100\n", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" || contentType != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	count int
}

func (f *fakeGenerator) GenerateCode(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.reply, f.err
}

func (f *fakeGenerator) setReply(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply, f.err = reply, nil
}

func (f *fakeGenerator) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply, f.err = "", err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeQueryEngine struct {
	result   query.Result
	err      error
	requests []query.Request
}

func (f *fakeQueryEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.requests = append(f.requests, request)
	return f.result, f.err
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("chartgpt-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body = %s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
