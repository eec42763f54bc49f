package dataset

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindTime   Kind = "time"
)

type floatConverter interface {
	Float64() float64
}

// Normalize maps driver and Go values onto the cell types a Table holds:
// nil, bool, int64, float64, string and time.Time.
func Normalize(value any) any {
	switch typed := value.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed > 1<<63-1 {
			return float64(typed)
		}
		return int64(typed)
	case uint:
		return Normalize(uint64(typed))
	case float32:
		return float64(typed)
	case []byte:
		return string(typed)
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case floatConverter:
		return typed.Float64()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func NormalizeRow(row []any) []any {
	normalized := make([]any, len(row))
	for i, value := range row {
		normalized[i] = Normalize(value)
	}
	return normalized
}

func KindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case time.Time:
		return KindTime
	default:
		return KindString
	}
}

// ColumnKinds infers one kind per column. Int and float mix to float; any other
// mix degrades to string. All-null columns are reported as string.
func (t *Table) ColumnKinds() []Kind {
	kinds := make([]Kind, len(t.Columns))
	for i := range t.Columns {
		kind := KindNull
		for _, row := range t.Rows {
			kind = mergeKind(kind, KindOf(row[i]))
		}
		if kind == KindNull {
			kind = KindString
		}
		kinds[i] = kind
	}
	return kinds
}

func mergeKind(current, next Kind) Kind {
	switch {
	case next == KindNull || current == next:
		return current
	case current == KindNull:
		return next
	case (current == KindInt && next == KindFloat) || (current == KindFloat && next == KindInt):
		return KindFloat
	default:
		return KindString
	}
}

func ToFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

// Compare orders two cell values. Nulls sort first; numbers compare numerically;
// values of unrelated kinds compare by their printed form.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	switch typedA := a.(type) {
	case string:
		if typedB, ok := b.(string); ok {
			return strings.Compare(typedA, typedB)
		}
	case time.Time:
		if typedB, ok := b.(time.Time); ok {
			return typedA.Compare(typedB)
		}
	case bool:
		if typedB, ok := b.(bool); ok {
			switch {
			case typedA == typedB:
				return 0
			case !typedA:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
