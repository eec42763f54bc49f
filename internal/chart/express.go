package chart

import (
	"fmt"

	"github.com/chartgpt/chartgpt/internal/dataset"
)

type Kind string

const (
	KindBar       Kind = "bar"
	KindLine      Kind = "line"
	KindScatter   Kind = "scatter"
	KindArea      Kind = "area"
	KindPie       Kind = "pie"
	KindHistogram Kind = "histogram"
)

// Spec names the table columns an express-style chart is drawn from.
type Spec struct {
	Kind   Kind
	X      string
	Y      string
	Color  string
	Names  string
	Values string
	Title  string
}

// Express builds a figure from a table the way plotly express does: one trace
// per distinct Color value, axis titles defaulting to the column names.
func Express(table *dataset.Table, spec Spec) (*Figure, error) {
	if table == nil {
		return nil, fmt.Errorf("%s chart requires a table", spec.Kind)
	}
	switch spec.Kind {
	case KindPie:
		return pie(table, spec)
	case KindHistogram:
		return histogram(table, spec)
	case KindBar, KindLine, KindScatter, KindArea:
	default:
		return nil, fmt.Errorf("unsupported chart kind %q", spec.Kind)
	}
	if spec.X == "" || spec.Y == "" {
		return nil, fmt.Errorf("%s chart requires x and y", spec.Kind)
	}

	xIndex, err := table.ColumnIndex(spec.X)
	if err != nil {
		return nil, err
	}
	yIndex, err := table.ColumnIndex(spec.Y)
	if err != nil {
		return nil, err
	}
	colorIndex := -1
	if spec.Color != "" {
		if colorIndex, err = table.ColumnIndex(spec.Color); err != nil {
			return nil, err
		}
	}

	fig := &Figure{Layout: Layout{Title: spec.Title, XAxisTitle: spec.X, YAxisTitle: spec.Y}}
	groups := map[string]int{}
	for _, row := range table.Rows {
		name := ""
		if colorIndex >= 0 {
			name = fmt.Sprint(row[colorIndex])
		}
		index, ok := groups[name]
		if !ok {
			index = len(fig.Data)
			groups[name] = index
			fig.AddTrace(newXYTrace(spec.Kind, name))
		}
		fig.Data[index].X = append(fig.Data[index].X, row[xIndex])
		fig.Data[index].Y = append(fig.Data[index].Y, row[yIndex])
	}
	if len(fig.Data) == 0 {
		fig.AddTrace(newXYTrace(spec.Kind, ""))
	}
	if spec.Kind == KindBar && colorIndex >= 0 {
		fig.Layout.BarMode = "relative"
	}
	return fig, nil
}

func newXYTrace(kind Kind, name string) Trace {
	switch kind {
	case KindBar:
		return Trace{Type: TraceBar, Name: name, X: []any{}, Y: []any{}}
	case KindScatter:
		return Trace{Type: TraceScatter, Name: name, Mode: "markers", X: []any{}, Y: []any{}}
	case KindArea:
		return Trace{Type: TraceScatter, Name: name, Mode: "lines", Fill: "tozeroy", X: []any{}, Y: []any{}}
	default:
		return Trace{Type: TraceScatter, Name: name, Mode: "lines", X: []any{}, Y: []any{}}
	}
}

func pie(table *dataset.Table, spec Spec) (*Figure, error) {
	if spec.Names == "" || spec.Values == "" {
		return nil, fmt.Errorf("pie chart requires names and values")
	}
	labels, err := table.Column(spec.Names)
	if err != nil {
		return nil, err
	}
	values, err := table.Column(spec.Values)
	if err != nil {
		return nil, err
	}
	return &Figure{
		Data:   []Trace{{Type: TracePie, Labels: labels, Values: values}},
		Layout: Layout{Title: spec.Title},
	}, nil
}

func histogram(table *dataset.Table, spec Spec) (*Figure, error) {
	if spec.X == "" {
		return nil, fmt.Errorf("histogram requires x")
	}
	values, err := table.Column(spec.X)
	if err != nil {
		return nil, err
	}
	return &Figure{
		Data:   []Trace{{Type: TraceHistogram, X: values}},
		Layout: Layout{Title: spec.Title, XAxisTitle: spec.X, YAxisTitle: "count"},
	}, nil
}
