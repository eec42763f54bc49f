package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/chartgpt/chartgpt/internal/history"
)

func TestRecordRun(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO chart_run (tenant_id, mode, question, snippet, status, result_kind, result_text, error_message, attempts, generation_ms, execution_ms, artifact_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING run_id, created_at`)).
		WithArgs("acme", "ask", "Total sales?", "df.sales.sum()", "succeeded", "value", "220", "", 1, int64(12), int64(3), "").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "created_at"}).AddRow(int64(7), now))

	run, err := repo.RecordRun(context.Background(), history.RunRecord{
		TenantID:     "acme",
		Mode:         "ask",
		Question:     "Total sales?",
		Snippet:      "df.sales.sum()",
		Status:       "succeeded",
		ResultKind:   "value",
		ResultText:   "220",
		Attempts:     1,
		GenerationMs: 12,
		ExecutionMs:  3,
	})
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if run.RunID != 7 {
		t.Fatalf("RunID = %d, want 7", run.RunID)
	}
	if !run.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", run.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestListRunsClampsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	columns := []string{"run_id", "tenant_id", "mode", "question", "snippet", "status", "result_kind", "result_text", "error_message", "attempts", "generation_ms", "execution_ms", "artifact_key", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM chart_run`)).
		WithArgs("acme", maxListLimit).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "acme", "plot", "Chart it", "px.bar(df)", "succeeded", "value", "Figure", "", 1, int64(5), int64(1), "charts/acme/run-0000000002.html", now).
			AddRow(int64(1), "acme", "ask", "Rows?", "len(df)", "failed", "", "", "execute: boom", 1, int64(5), int64(1), "", now))

	runs, err := repo.ListRuns(context.Background(), "acme", 10_000)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ArtifactKey != "charts/acme/run-0000000002.html" {
		t.Fatalf("ArtifactKey = %q", runs[0].ArtifactKey)
	}
	if runs[1].ErrorMessage != "execute: boom" {
		t.Fatalf("ErrorMessage = %q", runs[1].ErrorMessage)
	}
	assertSQLMock(t, mock)
}

func TestSetRunArtifact(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chart_run`)).
		WithArgs("acme", int64(9), "charts/acme/run-0000000009.html").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chart_run`)).
		WithArgs("acme", int64(10), "charts/acme/run-0000000010.html").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetRunArtifact(context.Background(), "acme", 9, "charts/acme/run-0000000009.html"); err != nil {
		t.Fatalf("SetRunArtifact() error = %v", err)
	}
	err := repo.SetRunArtifact(context.Background(), "acme", 10, "charts/acme/run-0000000010.html")
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordDatasetLoadEncodesColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO dataset_load`)).
		WithArgs("acme", "object", "uploads/acme/sales.csv", `["region","sales"]`, int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"load_id", "loaded_at"}).AddRow(int64(3), now))

	load, err := repo.RecordDatasetLoad(context.Background(), history.DatasetLoad{
		TenantID:  "acme",
		Source:    "object",
		ObjectKey: "uploads/acme/sales.csv",
		Columns:   []string{"region", "sales"},
		RowCount:  4,
	})
	if err != nil {
		t.Fatalf("RecordDatasetLoad() error = %v", err)
	}
	if load.LoadID != 3 {
		t.Fatalf("LoadID = %d, want 3", load.LoadID)
	}
	assertSQLMock(t, mock)
}

func TestLatestDatasetLoadDecodesColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dataset_load`)).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"load_id", "tenant_id", "source", "object_key", "columns_json", "row_count", "loaded_at"}).
			AddRow(int64(3), "acme", "upload", "", []byte(`["region","sales"]`), int64(4), now))

	load, err := repo.LatestDatasetLoad(context.Background(), "acme")
	if err != nil {
		t.Fatalf("LatestDatasetLoad() error = %v", err)
	}
	if len(load.Columns) != 2 || load.Columns[1] != "sales" {
		t.Fatalf("Columns = %v", load.Columns)
	}
	assertSQLMock(t, mock)
}

func TestLatestDatasetLoadReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dataset_load`)).
		WithArgs("acme").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LatestDatasetLoad(context.Background(), "acme")
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
