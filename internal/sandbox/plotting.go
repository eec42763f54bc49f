package sandbox

import (
	"context"
	"fmt"

	"github.com/chartgpt/chartgpt/internal/chart"
)

// expressModule mirrors plotly express. Styling keywords it does not model
// are ignored.
func expressModule() *Module {
	members := map[string]any{}
	for _, kind := range []chart.Kind{chart.KindBar, chart.KindLine, chart.KindScatter, chart.KindArea, chart.KindPie, chart.KindHistogram} {
		members[string(kind)] = &Builtin{Name: "px." + string(kind), Fn: func(_ context.Context, args Args) (any, error) {
			table, err := args.Table(0, "data_frame")
			if err != nil {
				return nil, err
			}
			spec := chart.Spec{Kind: kind}
			fields := []struct {
				dst  *string
				name string
				pos  int
			}{
				{&spec.X, "x", 1},
				{&spec.Y, "y", 2},
				{&spec.Color, "color", -1},
				{&spec.Names, "names", -1},
				{&spec.Values, "values", -1},
				{&spec.Title, "title", -1},
			}
			for _, field := range fields {
				if *field.dst, err = args.String(field.pos, field.name, ""); err != nil {
					return nil, err
				}
			}
			return chart.Express(table, spec)
		}}
	}
	return &Module{Name: "px", Members: members}
}

// graphModule mirrors plotly graph_objects.
func graphModule() *Module {
	return &Module{Name: "go", Members: map[string]any{
		"Figure": &Builtin{Name: "go.Figure", Fn: func(_ context.Context, args Args) (any, error) {
			if err := args.Check("Figure", 1, "data", "title", "xaxis_title", "yaxis_title", "barmode"); err != nil {
				return nil, err
			}
			fig := &chart.Figure{}
			if data, ok := args.Get(0, "data"); ok && data != nil {
				traces, err := traceList(data)
				if err != nil {
					return nil, err
				}
				for _, trace := range traces {
					fig.AddTrace(trace)
				}
			}
			layout, err := layoutArgs("Figure", Args{Keywords: withoutKey(args.Keywords, "data")})
			if err != nil {
				return nil, err
			}
			fig.UpdateLayout(layout)
			return fig, nil
		}},
		"Bar": &Builtin{Name: "go.Bar", Fn: func(_ context.Context, args Args) (any, error) {
			return newTrace(chart.TraceBar, args, "x", "y", "name")
		}},
		"Scatter": &Builtin{Name: "go.Scatter", Fn: func(_ context.Context, args Args) (any, error) {
			return newTrace(chart.TraceScatter, args, "x", "y", "name", "mode", "fill")
		}},
		"Pie": &Builtin{Name: "go.Pie", Fn: func(_ context.Context, args Args) (any, error) {
			return newTrace(chart.TracePie, args, "labels", "values", "name")
		}},
	}}
}

func newTrace(typ chart.TraceType, args Args, keywords ...string) (any, error) {
	if err := args.Check(string(typ), 0, keywords...); err != nil {
		return nil, err
	}
	trace := chart.Trace{Type: typ}
	if typ == chart.TraceScatter {
		trace.Mode = "lines+markers"
	}
	var err error
	lists := map[string]*[]any{"x": &trace.X, "y": &trace.Y, "labels": &trace.Labels, "values": &trace.Values}
	for key, dst := range lists {
		value, ok := args.Keywords[key]
		if !ok || value == nil {
			continue
		}
		if *dst, err = iterable(value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	if trace.Name, err = args.String(-1, "name", ""); err != nil {
		return nil, err
	}
	if trace.Mode, err = args.String(-1, "mode", trace.Mode); err != nil {
		return nil, err
	}
	if trace.Fill, err = args.String(-1, "fill", ""); err != nil {
		return nil, err
	}
	return trace, nil
}

func traceList(value any) ([]chart.Trace, error) {
	if trace, ok := value.(chart.Trace); ok {
		return []chart.Trace{trace}, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("data must be a trace or a list of traces, got %s", typeName(value))
	}
	traces := make([]chart.Trace, 0, len(items))
	for _, item := range items {
		trace, ok := item.(chart.Trace)
		if !ok {
			return nil, fmt.Errorf("data must contain traces, got %s", typeName(item))
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

func withoutKey(values map[string]any, key string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if k != key {
			out[k] = v
		}
	}
	return out
}
