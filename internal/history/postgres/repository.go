package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chartgpt/chartgpt/internal/history"
)

const maxListLimit = 500

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) RecordRun(ctx context.Context, in history.RunRecord) (history.RunRecord, error) {
	query := `
INSERT INTO chart_run (tenant_id, mode, question, snippet, status, result_kind, result_text, error_message, attempts, generation_ms, execution_ms, artifact_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING run_id, created_at`
	if err := r.db.QueryRowContext(ctx, query,
		in.TenantID,
		in.Mode,
		in.Question,
		in.Snippet,
		in.Status,
		in.ResultKind,
		in.ResultText,
		in.ErrorMessage,
		in.Attempts,
		in.GenerationMs,
		in.ExecutionMs,
		in.ArtifactKey,
	).Scan(&in.RunID, &in.CreatedAt); err != nil {
		return history.RunRecord{}, fmt.Errorf("record run: %w", err)
	}
	return in, nil
}

func (r *Repository) ListRuns(ctx context.Context, tenantID string, limit int) ([]history.RunRecord, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, tenant_id, mode, question, snippet, status, result_kind, result_text, error_message, attempts, generation_ms, execution_ms, artifact_key, created_at
FROM chart_run
WHERE tenant_id = $1
ORDER BY run_id DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]history.RunRecord, 0)
	for rows.Next() {
		var run history.RunRecord
		if err := rows.Scan(
			&run.RunID,
			&run.TenantID,
			&run.Mode,
			&run.Question,
			&run.Snippet,
			&run.Status,
			&run.ResultKind,
			&run.ResultText,
			&run.ErrorMessage,
			&run.Attempts,
			&run.GenerationMs,
			&run.ExecutionMs,
			&run.ArtifactKey,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (r *Repository) SetRunArtifact(ctx context.Context, tenantID string, runID int64, artifactKey string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE chart_run
SET artifact_key = $3
WHERE tenant_id = $1 AND run_id = $2`, tenantID, runID, artifactKey)
	if err != nil {
		return fmt.Errorf("set run artifact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set run artifact rows affected: %w", err)
	}
	if affected == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (r *Repository) RecordDatasetLoad(ctx context.Context, in history.DatasetLoad) (history.DatasetLoad, error) {
	columnsJSON, err := json.Marshal(in.Columns)
	if err != nil {
		return history.DatasetLoad{}, fmt.Errorf("encode dataset columns: %w", err)
	}
	query := `
INSERT INTO dataset_load (tenant_id, source, object_key, columns_json, row_count)
VALUES ($1, $2, $3, $4::jsonb, $5)
RETURNING load_id, loaded_at`
	if err := r.db.QueryRowContext(ctx, query, in.TenantID, in.Source, in.ObjectKey, string(columnsJSON), in.RowCount).
		Scan(&in.LoadID, &in.LoadedAt); err != nil {
		return history.DatasetLoad{}, fmt.Errorf("record dataset load: %w", err)
	}
	return in, nil
}

func (r *Repository) LatestDatasetLoad(ctx context.Context, tenantID string) (history.DatasetLoad, error) {
	query := `
SELECT load_id, tenant_id, source, object_key, columns_json, row_count, loaded_at
FROM dataset_load
WHERE tenant_id = $1
ORDER BY load_id DESC
LIMIT 1`
	var load history.DatasetLoad
	var columnsJSON []byte
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&load.LoadID,
		&load.TenantID,
		&load.Source,
		&load.ObjectKey,
		&columnsJSON,
		&load.RowCount,
		&load.LoadedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.DatasetLoad{}, history.ErrNotFound
		}
		return history.DatasetLoad{}, fmt.Errorf("get latest dataset load: %w", err)
	}
	if err := json.Unmarshal(columnsJSON, &load.Columns); err != nil {
		return history.DatasetLoad{}, fmt.Errorf("decode dataset columns: %w", err)
	}
	return load, nil
}
