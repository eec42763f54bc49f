package sandbox

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chartgpt/chartgpt/internal/chart"
	"github.com/chartgpt/chartgpt/internal/dataset"
)

// Func implements a callable exposed to snippets.
type Func func(ctx context.Context, args Args) (any, error)

type Builtin struct {
	Name string
	Fn   Func
}

// Module groups named members under one identifier, such as px or go.
type Module struct {
	Name    string
	Members map[string]any
}

type Args struct {
	Positional []any
	Keywords   map[string]any
}

// Get returns positional argument index or, failing that, keyword name.
func (a Args) Get(index int, name string) (any, bool) {
	if index >= 0 && index < len(a.Positional) {
		return a.Positional[index], true
	}
	if name == "" {
		return nil, false
	}
	value, ok := a.Keywords[name]
	return value, ok
}

// Check rejects surplus positional arguments and unknown keywords.
func (a Args) Check(fn string, maxPositional int, keywords ...string) error {
	if len(a.Positional) > maxPositional {
		return fmt.Errorf("%s() takes at most %d positional arguments (%d given)", fn, maxPositional, len(a.Positional))
	}
	for key := range a.Keywords {
		allowed := false
		for _, name := range keywords {
			if key == name {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%s() got an unexpected keyword argument %q", fn, key)
		}
	}
	return nil
}

func (a Args) String(index int, name, fallback string) (string, error) {
	value, ok := a.Get(index, name)
	if !ok || value == nil {
		return fallback, nil
	}
	typed, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string, got %s", name, typeName(value))
	}
	return typed, nil
}

func (a Args) Int(index int, name string, fallback int64) (int64, error) {
	value, ok := a.Get(index, name)
	if !ok || value == nil {
		return fallback, nil
	}
	typed, ok := value.(int64)
	if !ok {
		return 0, fmt.Errorf("argument %s must be an integer, got %s", name, typeName(value))
	}
	return typed, nil
}

func (a Args) Bool(index int, name string, fallback bool) (bool, error) {
	value, ok := a.Get(index, name)
	if !ok || value == nil {
		return fallback, nil
	}
	typed, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("argument %s must be a bool, got %s", name, typeName(value))
	}
	return typed, nil
}

func (a Args) Table(index int, name string) (*dataset.Table, error) {
	value, ok := a.Get(index, name)
	if !ok {
		return nil, fmt.Errorf("argument %s is required", name)
	}
	table, ok := value.(*dataset.Table)
	if !ok {
		return nil, fmt.Errorf("argument %s must be a table, got %s", name, typeName(value))
	}
	return table, nil
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case time.Time:
		return "Timestamp"
	case []any:
		return "list"
	case *dataset.Table:
		return "DataFrame"
	case *chart.Figure:
		return "Figure"
	case chart.Trace:
		return "Trace"
	case *Builtin:
		return "function"
	case *Module:
		return "module"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// Format renders a value the way print shows it.
func Format(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case *dataset.Table:
		return formatTable(typed)
	default:
		return Repr(value)
	}
}

// Repr renders a value the way it appears inside a list.
func Repr(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case int64:
		return fmt.Sprintf("%d", typed)
	case float64:
		return formatFloat(typed)
	case string:
		return "'" + strings.ReplaceAll(typed, "'", `\'`) + "'"
	case time.Time:
		return typed.UTC().Format("2006-01-02 15:04:05")
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, Repr(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *dataset.Table:
		return formatTable(typed)
	case *chart.Figure:
		return typed.String()
	case chart.Trace:
		return fmt.Sprintf("%s(name=%s)", traceConstructor(typed.Type), Repr(typed.Name))
	case *Builtin:
		return fmt.Sprintf("<function %s>", typed.Name)
	case *Module:
		return fmt.Sprintf("<module %s>", typed.Name)
	default:
		return fmt.Sprint(typed)
	}
}

func formatFloat(value float64) string {
	switch {
	case math.IsNaN(value):
		return "nan"
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	}
	abs := math.Abs(value)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return fmt.Sprintf("%g", value)
	}
	text := fmt.Sprintf("%v", value)
	if strings.ContainsAny(text, "e") {
		text = fmt.Sprintf("%f", value)
		text = strings.TrimRight(text, "0")
	}
	if !strings.Contains(text, ".") {
		text += ".0"
	}
	if strings.HasSuffix(text, ".") {
		text += "0"
	}
	return text
}

func valuesEqual(a, b any) bool {
	if la, ok := a.([]any); ok {
		lb, ok := b.([]any)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !valuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if isScalar(a) && isScalar(b) {
		if _, aNum := dataset.ToFloat(a); aNum {
			if _, bNum := dataset.ToFloat(b); !bNum {
				return false
			}
		} else if dataset.KindOf(a) != dataset.KindOf(b) {
			return false
		}
		return dataset.Compare(a, b) == 0
	}
	return a == b
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return true
	default:
		return false
	}
}

func sortedValues(values []any, reverse bool) []any {
	out := append([]any(nil), values...)
	sort.SliceStable(out, func(i, j int) bool {
		if reverse {
			return dataset.Compare(out[i], out[j]) > 0
		}
		return dataset.Compare(out[i], out[j]) < 0
	})
	return out
}

func traceConstructor(typ chart.TraceType) string {
	switch typ {
	case chart.TraceBar:
		return "Bar"
	case chart.TracePie:
		return "Pie"
	case chart.TraceHistogram:
		return "Histogram"
	default:
		return "Scatter"
	}
}
