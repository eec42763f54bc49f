package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/chart"
	"github.com/chartgpt/chartgpt/internal/chartgpt"
	"github.com/chartgpt/chartgpt/internal/codegen"
	"github.com/chartgpt/chartgpt/internal/history"
	"github.com/chartgpt/chartgpt/internal/sandbox"
	"github.com/chartgpt/chartgpt/internal/storage"
)

const (
	modeAsk  = chartgpt.ModeAsk
	modePlot = chartgpt.ModePlot
)

type questionRequest struct {
	Question string `json:"question"`
}

type runResponse struct {
	RunID        int64           `json:"run_id,omitempty"`
	Mode         string          `json:"mode"`
	Question     string          `json:"question"`
	Status       string          `json:"status"`
	Kind         string          `json:"kind,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
	Output       string          `json:"output,omitempty"`
	Text         string          `json:"text"`
	Snippet      string          `json:"snippet"`
	Attempts     int             `json:"attempts"`
	ArtifactKey  string          `json:"artifact_key,omitempty"`
	Error        string          `json:"error,omitempty"`
	GenerationMs int64           `json:"generation_ms"`
	ExecutionMs  int64           `json:"execution_ms"`
	StartedAt    string          `json:"started_at,omitempty"`
}

func handleQuestion(deps Dependencies, mode chartgpt.Mode, w http.ResponseWriter, r *http.Request) {
	tenantID, session, ok := sessionFor(deps, w, r, auth.RoleAnalyst)
	if !ok {
		return
	}

	var request questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	run, runErr := session.Execute(r.Context(), mode, request.Question)
	if notLoaded(runErr) {
		writeRunError(r.Context(), w, runErr, nil)
		return
	}

	response := newRunResponse(run)
	record, err := deps.History.RecordRun(r.Context(), historyRecord(tenantID, run))
	if err != nil {
		logWarn(r.Context(), deps.Logger, "record run failed", tenantID, err)
	} else {
		response.RunID = record.RunID
	}

	if runErr != nil {
		writeRunError(r.Context(), w, runErr, map[string]any{
			"run_id":   response.RunID,
			"snippet":  run.Snippet,
			"attempts": response.Attempts,
		})
		return
	}

	if figure, ok := run.Result.Value.(*chart.Figure); ok && response.RunID > 0 && deps.ObjectStore != nil {
		key, err := storeChart(r.Context(), deps, tenantID, response.RunID, figure)
		if err != nil {
			logWarn(r.Context(), deps.Logger, "store chart failed", tenantID, err)
		} else {
			response.ArtifactKey = key
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func storeChart(ctx context.Context, deps Dependencies, tenantID string, runID int64, figure *chart.Figure) (string, error) {
	page, err := chart.RenderHTML(figure)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildChartPath(tenantID, runID)
	if err != nil {
		return "", err
	}
	if _, err := storage.PutBytes(ctx, deps.ObjectStore, key, page, "text/html; charset=utf-8"); err != nil {
		return "", err
	}
	if err := deps.History.SetRunArtifact(ctx, tenantID, runID, key); err != nil {
		return "", err
	}
	return key, nil
}

func newRunResponse(run chartgpt.Run) runResponse {
	response := runResponse{
		Mode:         string(run.Mode),
		Question:     run.Question,
		Status:       run.Status(),
		Snippet:      run.Snippet,
		Attempts:     runAttempts(run),
		GenerationMs: run.GenerationDuration.Milliseconds(),
		ExecutionMs:  run.ExecutionDuration.Milliseconds(),
		StartedAt:    formatTime(run.StartedAt),
	}
	if run.Err != nil {
		response.Error = run.Err.Error()
		return response
	}
	response.Kind = string(run.Result.Kind)
	response.Text = run.Result.Text()
	if run.Result.Kind == sandbox.KindOutput {
		response.Output = run.Result.Output
		return response
	}
	// Values that do not encode as JSON (NaN, Inf) are still reported as text.
	if encoded, err := json.Marshal(run.Result.Value); err == nil {
		response.Value = encoded
	}
	return response
}

func historyRecord(tenantID string, run chartgpt.Run) history.RunRecord {
	record := history.RunRecord{
		TenantID:     tenantID,
		Mode:         string(run.Mode),
		Question:     run.Question,
		Snippet:      run.Snippet,
		Status:       run.Status(),
		Attempts:     runAttempts(run),
		GenerationMs: run.GenerationDuration.Milliseconds(),
		ExecutionMs:  run.ExecutionDuration.Milliseconds(),
		CreatedAt:    run.StartedAt.UTC(),
	}
	if run.Err != nil {
		record.ErrorMessage = run.Err.Error()
		return record
	}
	record.ResultKind = string(run.Result.Kind)
	record.ResultText = run.Result.Text()
	return record
}

func runAttempts(run chartgpt.Run) int {
	var executionErr *sandbox.ExecutionError
	if errors.As(run.Err, &executionErr) {
		return executionErr.Attempts
	}
	return run.Result.Attempts
}

// writeRunError maps the failing phase of a run onto an HTTP status.
func writeRunError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	switch chartgpt.PhaseOf(err) {
	case chartgpt.PhaseLoad:
		writeError(ctx, w, http.StatusConflict, "DATASET_NOT_LOADED", "load a dataset before asking questions", false, extra)
	case chartgpt.PhaseRender:
		writeError(ctx, w, http.StatusInternalServerError, "PROMPT_RENDER_FAILED", err.Error(), false, extra)
	case chartgpt.PhaseGenerate:
		retryable := false
		var generationErr *codegen.GenerationError
		if errors.As(err, &generationErr) {
			retryable = generationErr.Retryable
		}
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), retryable, extra)
	case chartgpt.PhaseExecute:
		writeError(ctx, w, http.StatusUnprocessableEntity, "EXECUTION_FAILED", err.Error(), false, withExecutionLine(err, extra))
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(ctx, w, http.StatusGatewayTimeout, "RUN_CANCELED", err.Error(), true, extra)
			return
		}
		writeError(ctx, w, http.StatusInternalServerError, "RUN_FAILED", err.Error(), true, extra)
	}
}

func withExecutionLine(err error, extra map[string]any) map[string]any {
	var executionErr *sandbox.ExecutionError
	if !errors.As(err, &executionErr) || executionErr.Line <= 0 {
		return extra
	}
	if extra == nil {
		extra = map[string]any{}
	}
	extra["line"] = executionErr.Line
	return extra
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func logWarn(ctx context.Context, logger *slog.Logger, message, tenantID string, err error) {
	if logger == nil {
		return
	}
	logger.WarnContext(ctx, message,
		slog.String("tenant_id", tenantID),
		slog.String("error", err.Error()),
	)
}
