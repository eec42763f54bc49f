package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Table is the in-memory tabular dataset that questions are asked about.
// Operations never mutate the receiver; derived tables share row slices.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func New(columns []string, rows [][]any) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		if strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if _, ok := seen[column]; ok {
			return nil, fmt.Errorf("duplicate column %q", column)
		}
		seen[column] = struct{}{}
	}

	normalized := make([][]any, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		normalized = append(normalized, NormalizeRow(row))
	}
	return &Table{Columns: append([]string(nil), columns...), Rows: normalized}, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) ColumnIndex(name string) (int, error) {
	for i, column := range t.Columns {
		if column == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown column %q", name)
}

func (t *Table) Column(name string) ([]any, error) {
	index, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[index])
	}
	return values, nil
}

func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: append([][]any(nil), t.Rows[:n]...)}
}

func (t *Table) Tail(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: append([][]any(nil), t.Rows[len(t.Rows)-n:]...)}
}

func (t *Table) SortBy(column string, ascending bool) (*Table, error) {
	index, err := t.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	rows := append([][]any(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := Compare(rows[i][index], rows[j][index])
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return &Table{Columns: t.Columns, Rows: rows}, nil
}

func (t *Table) Unique(column string) ([]any, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	unique := make([]any, 0)
	for _, value := range values {
		key := fmt.Sprintf("%T:%v", value, value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, value)
	}
	return unique, nil
}

// Sum adds the non-null values of a numeric column. Integer columns stay int64.
func (t *Table) Sum(column string) (any, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	return SumValues(values)
}

func (t *Table) Mean(column string) (float64, error) {
	values, err := t.Column(column)
	if err != nil {
		return 0, err
	}
	var total float64
	var count int
	for _, value := range values {
		if value == nil {
			continue
		}
		number, ok := ToFloat(value)
		if !ok {
			return 0, fmt.Errorf("column %q has non-numeric value %v", column, value)
		}
		total += number
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("column %q has no numeric values", column)
	}
	return total / float64(count), nil
}

func (t *Table) Min(column string) (any, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	return Extreme(values, -1), nil
}

func (t *Table) Max(column string) (any, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	return Extreme(values, 1), nil
}

// SumValues returns the sum of non-null numeric values, or an error on the first non-numeric one.
func SumValues(values []any) (any, error) {
	var intTotal int64
	var floatTotal float64
	isFloat := false
	for _, value := range values {
		switch typed := value.(type) {
		case nil:
		case int64:
			intTotal += typed
		case float64:
			floatTotal += typed
			isFloat = true
		default:
			return nil, fmt.Errorf("cannot sum non-numeric value %v", value)
		}
	}
	if isFloat {
		return floatTotal + float64(intTotal), nil
	}
	return intTotal, nil
}

// Extreme returns the smallest (direction < 0) or largest (direction > 0) non-null value.
func Extreme(values []any, direction int) any {
	var best any
	for _, value := range values {
		if value == nil {
			continue
		}
		if best == nil || Compare(value, best)*direction > 0 {
			best = value
		}
	}
	return best
}
