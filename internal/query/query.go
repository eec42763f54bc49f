package query

import (
	"context"
	"time"

	"github.com/chartgpt/chartgpt/internal/dataset"
)

type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatCSV     FileFormat = "csv"
	FormatJSON    FileFormat = "json"
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	Format        FileFormat
	FileSizeBytes int64
}

// Request runs SQL over named in-memory tables and object-store files. Both
// are exposed to the query as views under their table names.
type Request struct {
	SQL      string
	RowLimit int
	Tables   map[string]*dataset.Table
	Files    []TableFile
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

func (r Result) Table() *dataset.Table {
	return &dataset.Table{Columns: r.Columns, Rows: r.Rows}
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
