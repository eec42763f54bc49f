package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/chartgpt"
	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/history"
	"github.com/chartgpt/chartgpt/internal/query"
	"github.com/chartgpt/chartgpt/internal/sandbox"
	"github.com/chartgpt/chartgpt/internal/storage"
)

const (
	loadSourceObject = "object"
	loadSourceUpload = "upload"
)

var errEmptyUpload = errors.New("upload body is empty")

type loadDatasetRequest struct {
	ObjectKey string `json:"object_key"`
	Format    string `json:"format"`
}

type datasetResponse struct {
	TenantID  string   `json:"tenant_id"`
	Source    string   `json:"source,omitempty"`
	ObjectKey string   `json:"object_key,omitempty"`
	Columns   []string `json:"columns"`
	RowCount  int      `json:"row_count"`
	LoadedAt  string   `json:"loaded_at,omitempty"`
}

func handleLoadDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, session, ok := sessionFor(deps, w, r, auth.RoleAnalyst)
	if !ok {
		return
	}
	if deps.ObjectStore == nil || deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "object store and query engine are required to load datasets", false, nil)
		return
	}

	source := loadSourceObject
	var request loadDatasetRequest
	if isCSVUpload(r) {
		source = loadSourceUpload
		key, err := storeUpload(r.Context(), deps, tenantID, http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.Is(err, errEmptyUpload) {
				writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_EMPTY", err.Error(), false, nil)
				return
			}
			if errors.As(err, &tooLarge) {
				writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds size limit", false, map[string]any{"limit_bytes": tooLarge.Limit})
				return
			}
			writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "failed to store upload", true, map[string]any{"details": err.Error()})
			return
		}
		request = loadDatasetRequest{ObjectKey: key, Format: string(query.FormatCSV)}
	} else {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid dataset request body", false, map[string]any{"details": err.Error()})
			return
		}
		request.ObjectKey = strings.TrimSpace(request.ObjectKey)
		if request.ObjectKey == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "OBJECT_KEY_REQUIRED", "object_key is required", false, nil)
			return
		}
		uploads := storage.TenantPrefix(storage.UploadsRoot, tenantID)
		if strings.Contains(request.ObjectKey, "..") || !hasAnyPrefix(request.ObjectKey, []string{uploads}) {
			writeError(r.Context(), w, http.StatusForbidden, "OBJECT_KEY_NOT_ALLOWED", "object_key must be inside the tenant's uploads", false, map[string]any{"object_key": request.ObjectKey})
			return
		}
	}

	format, err := parseFormat(request.Format)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FORMAT_UNSUPPORTED", err.Error(), false, nil)
		return
	}

	info, err := deps.ObjectStore.Stat(r.Context(), request.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "OBJECT_NOT_FOUND", "object was not found", false, map[string]any{"object_key": request.ObjectKey})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to stat object", true, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SQL: "SELECT * FROM " + sandbox.DatasetName,
		Files: []query.TableFile{{
			TableName:     sandbox.DatasetName,
			ObjectPath:    request.ObjectKey,
			Format:        format,
			FileSizeBytes: info.Size,
		}},
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "DATASET_READ_FAILED", "failed to read dataset", false, map[string]any{"details": err.Error()})
		return
	}
	table, err := dataset.New(result.Columns, result.Rows)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "DATASET_INVALID", err.Error(), false, nil)
		return
	}

	session.Load(table)

	load, err := deps.History.RecordDatasetLoad(r.Context(), history.DatasetLoad{
		TenantID:  tenantID,
		Source:    source,
		ObjectKey: request.ObjectKey,
		Columns:   table.Columns,
		RowCount:  int64(table.Len()),
		LoadedAt:  deps.Now().UTC(),
	})
	if err != nil {
		logWarn(r.Context(), deps.Logger, "record dataset load failed", tenantID, err)
	}

	writeJSON(w, http.StatusOK, datasetResponse{
		TenantID:  tenantID,
		Source:    source,
		ObjectKey: request.ObjectKey,
		Columns:   table.Columns,
		RowCount:  table.Len(),
		LoadedAt:  formatTime(load.LoadedAt),
	})
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, session, ok := sessionFor(deps, w, r, auth.RoleViewer)
	if !ok {
		return
	}
	table, err := session.Dataset()
	if err != nil {
		if notLoaded(err) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_LOADED", "no dataset loaded", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_ERROR", err.Error(), true, nil)
		return
	}

	response := datasetResponse{TenantID: tenantID, Columns: table.Columns, RowCount: table.Len()}
	if load, err := deps.History.LatestDatasetLoad(r.Context(), tenantID); err == nil {
		response.Source = load.Source
		response.ObjectKey = load.ObjectKey
		response.LoadedAt = formatTime(load.LoadedAt)
	}
	writeJSON(w, http.StatusOK, response)
}

func isCSVUpload(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "text/csv"
}

func storeUpload(ctx context.Context, deps Dependencies, tenantID string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errEmptyUpload
	}
	key, err := storage.BuildUploadPath(tenantID, deps.Now(), string(query.FormatCSV))
	if err != nil {
		return "", err
	}
	if _, err := storage.PutBytes(ctx, deps.ObjectStore, key, data, "text/csv"); err != nil {
		return "", fmt.Errorf("put upload %q: %w", key, err)
	}
	return key, nil
}

func parseFormat(value string) (query.FileFormat, error) {
	switch format := query.FileFormat(strings.ToLower(strings.TrimSpace(value))); format {
	case "", query.FormatCSV, query.FormatParquet, query.FormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q", value)
	}
}

// notLoaded reports whether err means the tenant has no dataset yet.
func notLoaded(err error) bool {
	var notLoadedErr *chartgpt.NotLoadedError
	return errors.As(err, &notLoadedErr)
}
