package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/storage"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

func handleLastRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	_, session, ok := sessionFor(deps, w, r, auth.RoleViewer)
	if !ok {
		return
	}
	run, found := session.LastRun()
	if !found {
		writeError(r.Context(), w, http.StatusNotFound, "NO_RUNS", "no question has been asked yet", false, nil)
		return
	}
	response := newRunResponse(run)
	writeJSON(w, http.StatusOK, map[string]any{
		"run":    response,
		"prompt": run.Prompt,
		"reply":  run.Reply,
	})
}

func handleListRuns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleViewer)
	if !ok {
		return
	}

	limit := defaultRunsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRunsLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	runs, err := deps.History.ListRuns(r.Context(), tenantID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list runs", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"runs":      runs,
		"count":     len(runs),
	})
}

func handleGetChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store is not configured", false, nil)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("run_id"), 10, 64)
	if err != nil || runID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_RUN_ID", "run_id must be a positive integer", false, nil)
		return
	}
	key, err := storage.BuildChartPath(tenantID, runID)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_RUN_ID", err.Error(), false, nil)
		return
	}

	reader, err := deps.ObjectStore.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CHART_NOT_FOUND", "no chart stored for run", false, map[string]any{"run_id": runID})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to read chart", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// handleListObjects lists the caller's uploads and charts. Prefixes outside the
// tenant's own upload and chart roots are rejected.
func handleListObjects(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authorize(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store is not configured", false, nil)
		return
	}

	roots := []string{storage.TenantPrefix(storage.UploadsRoot, tenantID), storage.TenantPrefix(storage.ChartsRoot, tenantID)}
	prefixes := roots
	if prefix := strings.TrimSpace(r.URL.Query().Get("prefix")); prefix != "" {
		if strings.Contains(prefix, "..") || !hasAnyPrefix(prefix, roots) {
			writeError(r.Context(), w, http.StatusForbidden, "PREFIX_NOT_ALLOWED", "prefix must be inside the tenant's uploads or charts", false, map[string]any{"prefix": prefix})
			return
		}
		prefixes = []string{prefix}
	}

	objects := make([]map[string]any, 0)
	for _, prefix := range prefixes {
		infos, err := deps.ObjectStore.List(r.Context(), prefix)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to list objects", true, map[string]any{"details": err.Error()})
			return
		}
		for _, info := range infos {
			objects = append(objects, map[string]any{
				"key":           info.Key,
				"size_bytes":    info.Size,
				"etag":          info.ETag,
				"last_modified": formatTime(info.LastModified),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "objects": objects})
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
