package dataset

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
	Kinds       []Kind
}

// EncodeParquet writes the table as a flat parquet file with one optional
// column per table column, typed from ColumnKinds.
func EncodeParquet(t *Table) (ParquetEncodeResult, error) {
	if t == nil || len(t.Columns) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("table has no columns")
	}

	kinds := t.ColumnKinds()
	group := parquet.Group{}
	for i, column := range t.Columns {
		if _, ok := group[column]; ok {
			return ParquetEncodeResult{}, fmt.Errorf("duplicate column %q", column)
		}
		group[column] = parquet.Optional(parquetNode(kinds[i]))
	}
	schema := parquet.NewSchema("df", group)

	columnIndexes := make([]int, len(t.Columns))
	for i, column := range t.Columns {
		leaf, ok := schema.Lookup(column)
		if !ok {
			return ParquetEncodeResult{}, fmt.Errorf("lookup parquet column %q", column)
		}
		columnIndexes[i] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, 0, len(t.Rows))
	for rowIndex, values := range t.Rows {
		if len(values) != len(t.Columns) {
			return ParquetEncodeResult{}, fmt.Errorf("row %d has %d values, want %d", rowIndex, len(values), len(t.Columns))
		}
		row := make(parquet.Row, len(t.Columns))
		for i, value := range values {
			columnIndex := columnIndexes[i]
			if value == nil {
				row[columnIndex] = parquet.NullValue().Level(0, 0, columnIndex)
				continue
			}
			converted, err := parquetValue(kinds[i], value)
			if err != nil {
				return ParquetEncodeResult{}, fmt.Errorf("row %d column %q: %w", rowIndex, t.Columns[i], err)
			}
			row[columnIndex] = parquet.ValueOf(converted).Level(0, 1, columnIndex)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		Kinds:       kinds,
	}, nil
}

func parquetNode(kind Kind) parquet.Node {
	switch kind {
	case KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case KindInt:
		return parquet.Int(64)
	case KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case KindTime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

func parquetValue(kind Kind, value any) (any, error) {
	switch kind {
	case KindBool:
		typed, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
		return typed, nil
	case KindInt:
		typed, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("expected int64, got %T", value)
		}
		return typed, nil
	case KindFloat:
		typed, ok := ToFloat(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		return typed, nil
	case KindTime:
		typed, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time, got %T", value)
		}
		return typed.UTC().UnixMicro(), nil
	default:
		if typed, ok := value.(time.Time); ok {
			return typed.UTC().Format(time.RFC3339Nano), nil
		}
		return fmt.Sprint(value), nil
	}
}
