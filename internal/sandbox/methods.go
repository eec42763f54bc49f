package sandbox

import (
	"context"
	"fmt"

	"github.com/chartgpt/chartgpt/internal/chart"
	"github.com/chartgpt/chartgpt/internal/dataset"
)

func method(name string, fn Func) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

func tableAttr(t *dataset.Table, name string) (any, error) {
	switch name {
	case "columns":
		return stringsToValues(t.Columns), nil
	case "shape":
		return []any{int64(t.Len()), int64(len(t.Columns))}, nil
	case "empty":
		return t.Len() == 0, nil
	case "head", "tail":
		return method("DataFrame."+name, func(_ context.Context, args Args) (any, error) {
			if err := args.Check(name, 1, "n"); err != nil {
				return nil, err
			}
			n, err := args.Int(0, "n", 5)
			if err != nil {
				return nil, err
			}
			if name == "head" {
				return t.Head(int(n)), nil
			}
			return t.Tail(int(n)), nil
		}), nil
	case "sort_values":
		return method("DataFrame.sort_values", func(_ context.Context, args Args) (any, error) {
			if err := args.Check(name, 2, "by", "ascending"); err != nil {
				return nil, err
			}
			by, err := args.String(0, "by", "")
			if err != nil {
				return nil, err
			}
			if by == "" {
				return nil, fmt.Errorf("sort_values() missing required argument 'by'")
			}
			ascending, err := args.Bool(1, "ascending", true)
			if err != nil {
				return nil, err
			}
			return t.SortBy(by, ascending)
		}), nil
	case "sum", "mean", "min", "max", "unique":
		return method("DataFrame."+name, func(_ context.Context, args Args) (any, error) {
			if err := args.Check(name, 1, "column"); err != nil {
				return nil, err
			}
			column, err := args.String(0, "column", "")
			if err != nil {
				return nil, err
			}
			if column == "" {
				return nil, fmt.Errorf("%s() missing required argument 'column'", name)
			}
			switch name {
			case "sum":
				return t.Sum(column)
			case "mean":
				return t.Mean(column)
			case "min":
				return t.Min(column)
			case "max":
				return t.Max(column)
			default:
				return t.Unique(column)
			}
		}), nil
	case "count":
		return method("DataFrame.count", func(_ context.Context, args Args) (any, error) {
			if err := args.Check(name, 0); err != nil {
				return nil, err
			}
			return int64(t.Len()), nil
		}), nil
	}
	if _, err := t.ColumnIndex(name); err == nil {
		return t.Column(name)
	}
	return nil, fmt.Errorf("DataFrame object has no attribute %q", name)
}

func listAttr(values []any, name string) (any, error) {
	switch name {
	case "sum", "mean", "min", "max", "unique", "tolist", "count":
	default:
		return nil, fmt.Errorf("list object has no attribute %q", name)
	}
	return method("list."+name, func(_ context.Context, args Args) (any, error) {
		if err := args.Check(name, 0); err != nil {
			return nil, err
		}
		switch name {
		case "sum":
			return dataset.SumValues(values)
		case "mean":
			total, count := 0.0, 0
			for _, value := range values {
				if value == nil {
					continue
				}
				number, ok := dataset.ToFloat(value)
				if !ok {
					return nil, fmt.Errorf("cannot average non-numeric value %s", Repr(value))
				}
				total += number
				count++
			}
			if count == 0 {
				return nil, fmt.Errorf("mean of empty sequence")
			}
			return total / float64(count), nil
		case "min":
			return dataset.Extreme(values, -1), nil
		case "max":
			return dataset.Extreme(values, 1), nil
		case "unique":
			table := &dataset.Table{Columns: []string{"value"}, Rows: make([][]any, 0, len(values))}
			for _, value := range values {
				table.Rows = append(table.Rows, []any{value})
			}
			return table.Unique("value")
		case "count":
			count := int64(0)
			for _, value := range values {
				if value != nil {
					count++
				}
			}
			return count, nil
		default:
			return append([]any{}, values...), nil
		}
	}), nil
}

func figureAttr(fig *chart.Figure, name string) (any, error) {
	switch name {
	case "update_layout":
		return method("Figure.update_layout", func(_ context.Context, args Args) (any, error) {
			update, err := layoutArgs("update_layout", args)
			if err != nil {
				return nil, err
			}
			fig.UpdateLayout(update)
			return fig, nil
		}), nil
	case "add_trace":
		return method("Figure.add_trace", func(_ context.Context, args Args) (any, error) {
			if err := args.Check(name, 1, "trace"); err != nil {
				return nil, err
			}
			value, _ := args.Get(0, "trace")
			trace, ok := value.(chart.Trace)
			if !ok {
				return nil, fmt.Errorf("add_trace() expects a trace, got %s", typeName(value))
			}
			fig.AddTrace(trace)
			return fig, nil
		}), nil
	case "show":
		return method("Figure.show", func(_ context.Context, _ Args) (any, error) {
			return nil, nil
		}), nil
	case "data":
		traces := make([]any, 0, len(fig.Data))
		for _, trace := range fig.Data {
			traces = append(traces, trace)
		}
		return traces, nil
	}
	return nil, fmt.Errorf("Figure object has no attribute %q", name)
}

func layoutArgs(fn string, args Args) (chart.Layout, error) {
	if err := args.Check(fn, 0, "title", "xaxis_title", "yaxis_title", "barmode"); err != nil {
		return chart.Layout{}, err
	}
	var layout chart.Layout
	var err error
	if layout.Title, err = args.String(-1, "title", ""); err != nil {
		return chart.Layout{}, err
	}
	if layout.XAxisTitle, err = args.String(-1, "xaxis_title", ""); err != nil {
		return chart.Layout{}, err
	}
	if layout.YAxisTitle, err = args.String(-1, "yaxis_title", ""); err != nil {
		return chart.Layout{}, err
	}
	if layout.BarMode, err = args.String(-1, "barmode", ""); err != nil {
		return chart.Layout{}, err
	}
	return layout, nil
}
