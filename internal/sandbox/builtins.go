package sandbox

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/query"
)

// builtins returns the functions every environment starts with. print and sql
// close over env so output and views stay private to the attempt.
func builtins(env *Env, engine query.Engine, rowLimit int) map[string]any {
	fns := map[string]Func{
		"print": func(_ context.Context, args Args) (any, error) {
			return nil, printValues(env.out, args)
		},
		"sql": func(ctx context.Context, args Args) (any, error) {
			if err := args.Check("sql", 1, "query"); err != nil {
				return nil, err
			}
			statement, err := args.String(0, "query", "")
			if err != nil {
				return nil, err
			}
			if engine == nil {
				return nil, fmt.Errorf("no query engine configured")
			}
			result, err := engine.Execute(ctx, query.Request{SQL: statement, RowLimit: rowLimit, Tables: env.Tables()})
			if err != nil {
				return nil, err
			}
			return result.Table(), nil
		},
		"len":    builtinLen,
		"round":  builtinRound,
		"str":    builtinStr,
		"sum":    builtinSum,
		"min":    extremeBuiltin("min", -1),
		"max":    extremeBuiltin("max", 1),
		"abs":    builtinAbs,
		"int":    builtinInt,
		"float":  builtinFloat,
		"list":   builtinList,
		"sorted": builtinSorted,
	}
	out := make(map[string]any, len(fns))
	for name, fn := range fns {
		out[name] = &Builtin{Name: name, Fn: fn}
	}
	return out
}

func printValues(w io.Writer, args Args) error {
	if err := args.Check("print", math.MaxInt, "sep", "end"); err != nil {
		return err
	}
	sep, err := args.String(-1, "sep", " ")
	if err != nil {
		return err
	}
	end, err := args.String(-1, "end", "\n")
	if err != nil {
		return err
	}
	parts := make([]string, 0, len(args.Positional))
	for _, value := range args.Positional {
		parts = append(parts, Format(value))
	}
	_, err = io.WriteString(w, strings.Join(parts, sep)+end)
	return err
}

func singleArg(fn string, args Args) (any, error) {
	if len(args.Positional) != 1 || len(args.Keywords) > 0 {
		return nil, fmt.Errorf("%s() takes exactly one argument (%d given)", fn, len(args.Positional)+len(args.Keywords))
	}
	return args.Positional[0], nil
}

func builtinLen(_ context.Context, args Args) (any, error) {
	value, err := singleArg("len", args)
	if err != nil {
		return nil, err
	}
	switch typed := value.(type) {
	case *dataset.Table:
		return int64(typed.Len()), nil
	case []any:
		return int64(len(typed)), nil
	case string:
		return int64(len([]rune(typed))), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", typeName(value))
}

func builtinRound(_ context.Context, args Args) (any, error) {
	if err := args.Check("round", 2, "number", "ndigits"); err != nil {
		return nil, err
	}
	value, ok := args.Get(0, "number")
	if !ok {
		return nil, fmt.Errorf("round() missing required argument 'number'")
	}
	digits, hasDigits := args.Get(1, "ndigits")
	if hasDigits && digits == nil {
		hasDigits = false
	}
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case float64:
		if !hasDigits {
			return int64(math.RoundToEven(typed)), nil
		}
		n, ok := digits.(int64)
		if !ok {
			return nil, fmt.Errorf("ndigits must be an integer, got %s", typeName(digits))
		}
		scale := math.Pow(10, float64(n))
		return math.RoundToEven(typed*scale) / scale, nil
	}
	return nil, fmt.Errorf("type %s doesn't define round", typeName(value))
}

func builtinStr(_ context.Context, args Args) (any, error) {
	if len(args.Positional) == 0 && len(args.Keywords) == 0 {
		return "", nil
	}
	value, err := singleArg("str", args)
	if err != nil {
		return nil, err
	}
	return Format(value), nil
}

func builtinSum(_ context.Context, args Args) (any, error) {
	if err := args.Check("sum", 2, "start"); err != nil {
		return nil, err
	}
	value, ok := args.Get(0, "")
	if !ok {
		return nil, fmt.Errorf("sum() takes at least 1 positional argument")
	}
	values, err := iterable(value)
	if err != nil {
		return nil, err
	}
	total, err := dataset.SumValues(values)
	if err != nil {
		return nil, err
	}
	if start, ok := args.Get(1, "start"); ok {
		return binary(tokPlus, start, total)
	}
	return total, nil
}

func extremeBuiltin(name string, direction int) Func {
	return func(_ context.Context, args Args) (any, error) {
		if err := args.Check(name, math.MaxInt); err != nil {
			return nil, err
		}
		values := args.Positional
		if len(values) == 1 {
			items, err := iterable(values[0])
			if err != nil {
				return nil, err
			}
			values = items
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%s() arg is an empty sequence", name)
		}
		return dataset.Extreme(values, direction), nil
	}
}

func builtinAbs(_ context.Context, args Args) (any, error) {
	value, err := singleArg("abs", args)
	if err != nil {
		return nil, err
	}
	switch typed := value.(type) {
	case int64:
		if typed < 0 {
			return -typed, nil
		}
		return typed, nil
	case float64:
		return math.Abs(typed), nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): %s", typeName(value))
}

func builtinInt(_ context.Context, args Args) (any, error) {
	value, err := singleArg("int", args)
	if err != nil {
		return nil, err
	}
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case float64:
		return int64(typed), nil
	case bool:
		if typed {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): %s", Repr(typed))
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("int() argument must be a string or a number, not %s", typeName(value))
}

func builtinFloat(_ context.Context, args Args) (any, error) {
	value, err := singleArg("float", args)
	if err != nil {
		return nil, err
	}
	switch typed := value.(type) {
	case int64:
		return float64(typed), nil
	case float64:
		return typed, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %s", Repr(typed))
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("float() argument must be a string or a number, not %s", typeName(value))
}

func builtinList(_ context.Context, args Args) (any, error) {
	value, err := singleArg("list", args)
	if err != nil {
		return nil, err
	}
	items, err := iterable(value)
	if err != nil {
		return nil, err
	}
	return append([]any{}, items...), nil
}

func builtinSorted(_ context.Context, args Args) (any, error) {
	if err := args.Check("sorted", 1, "reverse"); err != nil {
		return nil, err
	}
	value, ok := args.Get(0, "")
	if !ok {
		return nil, fmt.Errorf("sorted() expected 1 argument")
	}
	items, err := iterable(value)
	if err != nil {
		return nil, err
	}
	reverse, err := args.Bool(-1, "reverse", false)
	if err != nil {
		return nil, err
	}
	return sortedValues(items, reverse), nil
}

// iterable yields the items a value iterates over. Tables iterate over their
// column names.
func iterable(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		return typed, nil
	case *dataset.Table:
		return stringsToValues(typed.Columns), nil
	case string:
		items := make([]any, 0, len(typed))
		for _, r := range typed {
			items = append(items, string(r))
		}
		return items, nil
	}
	return nil, fmt.Errorf("%s object is not iterable", typeName(value))
}

func stringsToValues(values []string) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}
