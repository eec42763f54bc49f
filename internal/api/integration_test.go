//go:build integration

package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chartgpt/chartgpt/internal/chartgpt"
	"github.com/chartgpt/chartgpt/internal/history"
	duckdbengine "github.com/chartgpt/chartgpt/internal/query/duckdb"
	"github.com/chartgpt/chartgpt/internal/sandbox"
	"github.com/chartgpt/chartgpt/internal/storage/local"
)

func TestUploadAskWithDuckDBEngine(t *testing.T) {
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	engine := duckdbengine.NewEngine(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	generator := &fakeGenerator{}
	runner := sandbox.NewRunner(sandbox.Options{Engine: engine, RowLimit: 100, Logger: logger})

	sessions := NewSessions(func(string) (*chartgpt.ChartGPT, error) {
		return chartgpt.New(
			chartgpt.WithGenerator(generator),
			chartgpt.WithRunner(runner),
			chartgpt.WithLogger(logger),
		)
	})
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Sessions:    sessions,
		QueryEngine: engine,
		ObjectStore: store,
		History:     history.NewMemory(0),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/datasets", strings.NewReader("region,sales\nnorth,10\nsouth,25\nnorth,5\n"))
	req.Header.Set("Content-Type", "text/csv")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["row_count"] != float64(3) {
		t.Fatalf("load body = %s", rr.Body.String())
	}

	generator.setReply("<startCode>\ntotals = sql(\"SELECT region, SUM(sales) AS total FROM df GROUP BY region ORDER BY total DESC\")\ntotals.head(1)\n<endCode>")
	req = httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"Top region?"}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	value := body["value"].(map[string]any)
	rows := value["rows"].([]any)
	if len(rows) != 1 || rows[0].([]any)[0] != "south" {
		t.Fatalf("ask value = %v", value)
	}
}
