package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/query"
	"github.com/chartgpt/chartgpt/internal/storage"
)

// Engine runs each request in a fresh in-memory DuckDB database. In-memory
// tables are staged as parquet files in a private temp dir; object-store files
// are downloaded next to them. Both are copied into DuckDB tables before the
// request SQL runs with external access disabled.
type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if len(request.Files) == 0 && len(request.Tables) == 0 {
		return query.Result{}, fmt.Errorf("no tables available for query")
	}
	if len(request.Files) > 0 && e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "chartgpt-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	views := map[string]viewSource{}
	var scannedBytes int64

	tableNames := make([]string, 0, len(request.Tables))
	for name := range request.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)
	for index, name := range tableNames {
		encoded, err := dataset.EncodeParquet(request.Tables[name])
		if err != nil {
			return query.Result{}, fmt.Errorf("encode table %q: %w", name, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("mem_%s_%d.parquet", sanitizeFileComponent(name), index))
		if err := os.WriteFile(localPath, encoded.Data, 0o600); err != nil {
			return query.Result{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		views[name] = viewSource{format: query.FormatParquet, paths: []string{localPath}}
		scannedBytes += int64(len(encoded.Data))
	}

	for index, file := range request.Files {
		format, err := resolveFormat(file)
		if err != nil {
			return query.Result{}, err
		}
		source := views[file.TableName]
		if len(source.paths) > 0 && source.format != format {
			return query.Result{}, fmt.Errorf("table %q mixes %s and %s files", file.TableName, source.format, format)
		}

		reader, err := e.Store.Get(ctx, file.ObjectPath)
		if err != nil {
			return query.Result{}, fmt.Errorf("get object %q: %w", file.ObjectPath, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.%s", sanitizeFileComponent(file.TableName), index, format))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return query.Result{}, fmt.Errorf("write local file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return query.Result{}, fmt.Errorf("close object %q: %w", file.ObjectPath, err)
		}

		source.format = format
		source.paths = append(source.paths, localPath)
		views[file.TableName] = source
		scannedBytes += file.FileSizeBytes
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Settings are database-wide; a single connection keeps the lockdown and
	// the staged tables on the same handle.
	db.SetMaxOpenConns(1)

	for tableName, source := range views {
		createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM %s(%s)`, quoteIdent(tableName), source.reader(), quoteStringArray(source.paths))
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			return query.Result{}, fmt.Errorf("stage table %q: %w", tableName, err)
		}
	}
	if err := lockDown(ctx, db); err != nil {
		return query.Result{}, err
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, dataset.NormalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(request.Files),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

// lockDown stops the request SQL from reaching the host filesystem or
// network and from re-enabling either.
func lockDown(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("restrict duckdb: %w", err)
		}
	}
	return nil
}

type viewSource struct {
	format query.FileFormat
	paths  []string
}

func (v viewSource) reader() string {
	switch v.format {
	case query.FormatCSV:
		return "read_csv_auto"
	case query.FormatJSON:
		return "read_json_auto"
	default:
		return "read_parquet"
	}
}

func resolveFormat(file query.TableFile) (query.FileFormat, error) {
	if file.Format != "" {
		switch file.Format {
		case query.FormatParquet, query.FormatCSV, query.FormatJSON:
			return file.Format, nil
		default:
			return "", fmt.Errorf("unsupported format %q for %q", file.Format, file.ObjectPath)
		}
	}
	return FormatFromPath(file.ObjectPath)
}

// FormatFromPath maps a file extension onto a DuckDB reader format.
func FormatFromPath(objectPath string) (query.FileFormat, error) {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".parquet":
		return query.FormatParquet, nil
	case ".csv", ".tsv":
		return query.FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return query.FormatJSON, nil
	default:
		return "", fmt.Errorf("cannot infer file format from %q", objectPath)
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
