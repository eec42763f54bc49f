package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/chartgpt/chartgpt/internal/chart"
	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/query"
)

func salesTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.New([]string{"country", "revenue"}, [][]any{
		{"US", 100},
		{"DE", 70},
		{"US", 50},
		{"FR", 30},
	})
	if err != nil {
		t.Fatalf("dataset.New() error = %v", err)
	}
	return table
}

func TestRunReturnsBarChartFromFinalExpression(t *testing.T) {
	runner := NewRunner(Options{})
	snippet := `totals = df.sort_values("revenue", ascending=False)
fig = px.bar(totals, x="country", y="revenue", title="Total revenue by country")
fig`

	result, err := runner.Run(context.Background(), snippet, salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindValue || result.Attempts != 1 {
		t.Fatalf("result = %+v", result)
	}
	fig, ok := result.Value.(*chart.Figure)
	if !ok {
		t.Fatalf("value = %T, want *chart.Figure", result.Value)
	}
	if fig.Layout.Title != "Total revenue by country" || fig.Data[0].X[0] != "US" {
		t.Fatalf("figure = %+v", fig)
	}
}

func TestRunUnwrapsFinalPrint(t *testing.T) {
	runner := NewRunner(Options{})
	result, err := runner.Run(context.Background(), "x = df.sum(\"revenue\") * 2\nprint(x)\n\n", salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindValue || result.Value != int64(500) {
		t.Fatalf("result = %+v", result)
	}
	if result.FinalExpression != "x" {
		t.Fatalf("FinalExpression = %q", result.FinalExpression)
	}
}

func TestRunFallsBackToOutputAfterAssignment(t *testing.T) {
	runner := NewRunner(Options{})
	result, err := runner.Run(context.Background(), "print(\"T\", end=\"\")\ny = 1", salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindOutput || result.Output != "T" {
		t.Fatalf("result = %+v", result)
	}
	if result.Text() != "T" {
		t.Fatalf("Text() = %q", result.Text())
	}
}

func TestRunEmptySnippetFallsBackToEmptyOutput(t *testing.T) {
	runner := NewRunner(Options{})
	result, err := runner.Run(context.Background(), "  \n # nothing here\n", salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindOutput || result.Output != "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunMultiPrintFinalLineFallsBack(t *testing.T) {
	runner := NewRunner(Options{})
	result, err := runner.Run(context.Background(), `print("rows:", len(df))`, salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindOutput || result.Output != "rows: 4\n" {
		t.Fatalf("result = %+v", result)
	}
}

func flakyBuiltin() (*Builtin, *int) {
	calls := 0
	return &Builtin{Name: "flaky", Fn: func(context.Context, Args) (any, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return int64(calls), nil
	}}, &calls
}

func TestRunRetriesOnceWhenAllowed(t *testing.T) {
	flaky, calls := flakyBuiltin()
	runner := NewRunner(Options{Extra: map[string]any{"flaky": flaky}})

	result, err := runner.Run(context.Background(), "n = flaky()\nn", salesTable(t), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Attempts != 2 || result.Value != int64(2) || *calls != 2 {
		t.Fatalf("result = %+v calls = %d", result, *calls)
	}
}

func TestRunWithoutRetryFailsImmediately(t *testing.T) {
	flaky, calls := flakyBuiltin()
	runner := NewRunner(Options{Extra: map[string]any{"flaky": flaky}})

	_, err := runner.Run(context.Background(), "a = 1\nn = flaky()\nn", salesTable(t), false)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if execErr.Attempts != 1 || execErr.Line != 2 || *calls != 1 {
		t.Fatalf("error = %+v calls = %d", execErr, *calls)
	}
	if !strings.Contains(err.Error(), "transient failure") {
		t.Fatalf("error text = %q", err.Error())
	}
}

func TestRunPersistentFaultExhaustsRetry(t *testing.T) {
	runner := NewRunner(Options{})
	_, err := runner.Run(context.Background(), "fig = px.bar(df, x=\"country\", y=\"profit\")", salesTable(t), true)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Attempts != 2 {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunOversizedStringRepeatFails(t *testing.T) {
	runner := NewRunner(Options{})
	_, err := runner.Run(context.Background(), "a = 1\nx = \"ab\" * 4611686018427387904", salesTable(t), false)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if execErr.Line != 2 || !strings.Contains(err.Error(), "string repeat exceeds") {
		t.Fatalf("error = %+v", execErr)
	}
}

func TestRunRecoversBuiltinPanic(t *testing.T) {
	boom := &Builtin{Name: "boom", Fn: func(context.Context, Args) (any, error) {
		panic("index out of range")
	}}
	runner := NewRunner(Options{Extra: map[string]any{"boom": boom}})

	_, err := runner.Run(context.Background(), "a = 1\nb = boom()", salesTable(t), true)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if execErr.Attempts != 2 || execErr.Line != 2 || !strings.Contains(err.Error(), "runtime fault") {
		t.Fatalf("error = %+v", execErr)
	}

	calls := 0
	late := &Builtin{Name: "late", Fn: func(context.Context, Args) (any, error) {
		calls++
		if calls > 1 {
			panic("second call")
		}
		return int64(1), nil
	}}
	runner = NewRunner(Options{Extra: map[string]any{"late": late}})
	result, err := runner.Run(context.Background(), "print(\"ok\")\nlate()", salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Kind != KindOutput || !strings.Contains(result.Output, "ok") {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunSyntaxErrorReportsLine(t *testing.T) {
	runner := NewRunner(Options{})
	_, err := runner.Run(context.Background(), "a = 1\nb = (a +\n", salesTable(t), false)
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("Run() error = %v, want SyntaxError", err)
	}
}

func TestRunUsesFreshEnvironmentPerCall(t *testing.T) {
	runner := NewRunner(Options{})
	if _, err := runner.Run(context.Background(), "leak = 1\nprint(\"set\")", salesTable(t), false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result, err := runner.Run(context.Background(), "leak", salesTable(t), false)
	if err == nil {
		t.Fatalf("expected undefined name error, got %+v", result)
	}
}

func TestRunHonorsCanceledContext(t *testing.T) {
	runner := NewRunner(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, "a = 1", salesTable(t), true)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Attempts != 1 || !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunDebugLogsFallback(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	runner := NewRunner(Options{Logger: logger})
	if _, err := runner.Run(context.Background(), "x = 1", salesTable(t), false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(logs.String(), "level=DEBUG") || strings.Contains(logs.String(), "level=ERROR") {
		t.Fatalf("logs = %s", logs.String())
	}
}

type fakeEngine struct {
	requests []query.Request
	result   query.Result
	err      error
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.requests = append(f.requests, request)
	return f.result, f.err
}

func TestSQLSeesEveryTableBinding(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"country", "total"}, Rows: [][]any{{"US", int64(150)}}}}
	runner := NewRunner(Options{Engine: engine, RowLimit: 100})

	snippet := `top = df.head(2)
totals = sql("SELECT country, SUM(revenue) AS total FROM df GROUP BY country")
totals["total"][0]`
	result, err := runner.Run(context.Background(), snippet, salesTable(t), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Value != int64(150) {
		t.Fatalf("value = %#v", result.Value)
	}
	// the final expression does not call sql again
	if len(engine.requests) != 1 {
		t.Fatalf("requests = %d", len(engine.requests))
	}
	request := engine.requests[0]
	if request.RowLimit != 100 || request.Tables["df"] == nil || request.Tables["top"].Len() != 2 {
		t.Fatalf("request = %+v", request)
	}
}

func TestSQLWithoutEngineFaults(t *testing.T) {
	runner := NewRunner(Options{})
	if _, err := runner.Run(context.Background(), `sql("SELECT 1")`, salesTable(t), false); err == nil {
		t.Fatal("expected error without query engine")
	}
}
