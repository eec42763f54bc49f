package dataset

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

func TestEncodeParquetWritesAllRows(t *testing.T) {
	table, err := New([]string{"country", "revenue", "at"}, [][]any{
		{"US", 10, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"DE", 2.5, nil},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	encoded, err := EncodeParquet(table)
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	if encoded.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", encoded.RecordCount)
	}
	if encoded.Kinds[1] != KindFloat {
		t.Fatalf("Kinds[1] = %q", encoded.Kinds[1])
	}

	file, err := parquet.OpenFile(bytes.NewReader(encoded.Data), int64(len(encoded.Data)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", file.NumRows())
	}
	for _, column := range table.Columns {
		if _, ok := file.Schema().Lookup(column); !ok {
			t.Fatalf("schema missing column %q", column)
		}
	}
}

func TestEncodeParquetRequiresColumns(t *testing.T) {
	if _, err := EncodeParquet(&Table{}); err == nil {
		t.Fatal("expected error for table without columns")
	}
}
