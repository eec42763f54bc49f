// Package chart models plotly-compatible figures built from dataset tables.
package chart

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TraceType string

const (
	TraceBar       TraceType = "bar"
	TraceScatter   TraceType = "scatter"
	TracePie       TraceType = "pie"
	TraceHistogram TraceType = "histogram"
)

type Trace struct {
	Type   TraceType `json:"type"`
	Name   string    `json:"name,omitempty"`
	X      []any     `json:"x,omitempty"`
	Y      []any     `json:"y,omitempty"`
	Labels []any     `json:"labels,omitempty"`
	Values []any     `json:"values,omitempty"`
	Mode   string    `json:"mode,omitempty"`
	Fill   string    `json:"fill,omitempty"`
}

type Layout struct {
	Title      string
	XAxisTitle string
	YAxisTitle string
	BarMode    string
}

// Figure is the chart object a plot question resolves to. It marshals to the
// JSON shape plotly.js accepts for Plotly.newPlot.
type Figure struct {
	Data   []Trace
	Layout Layout
}

func (f *Figure) AddTrace(trace Trace) {
	f.Data = append(f.Data, trace)
}

// UpdateLayout applies the non-empty fields of update.
func (f *Figure) UpdateLayout(update Layout) {
	if update.Title != "" {
		f.Layout.Title = update.Title
	}
	if update.XAxisTitle != "" {
		f.Layout.XAxisTitle = update.XAxisTitle
	}
	if update.YAxisTitle != "" {
		f.Layout.YAxisTitle = update.YAxisTitle
	}
	if update.BarMode != "" {
		f.Layout.BarMode = update.BarMode
	}
}

func (f *Figure) String() string {
	kinds := make([]string, 0, len(f.Data))
	for _, trace := range f.Data {
		kinds = append(kinds, string(trace.Type))
	}
	title := f.Layout.Title
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("Figure(%q, traces=[%s])", title, strings.Join(kinds, ", "))
}

type axisTitle struct {
	Text string `json:"text"`
}

type axisJSON struct {
	Title axisTitle `json:"title"`
}

type layoutJSON struct {
	Title   *axisTitle `json:"title,omitempty"`
	XAxis   *axisJSON  `json:"xaxis,omitempty"`
	YAxis   *axisJSON  `json:"yaxis,omitempty"`
	BarMode string     `json:"barmode,omitempty"`
}

type figureJSON struct {
	Data   []Trace    `json:"data"`
	Layout layoutJSON `json:"layout"`
}

func (f *Figure) MarshalJSON() ([]byte, error) {
	out := figureJSON{Data: f.Data, Layout: layoutJSON{BarMode: f.Layout.BarMode}}
	if out.Data == nil {
		out.Data = []Trace{}
	}
	if f.Layout.Title != "" {
		out.Layout.Title = &axisTitle{Text: f.Layout.Title}
	}
	if f.Layout.XAxisTitle != "" {
		out.Layout.XAxis = &axisJSON{Title: axisTitle{Text: f.Layout.XAxisTitle}}
	}
	if f.Layout.YAxisTitle != "" {
		out.Layout.YAxis = &axisJSON{Title: axisTitle{Text: f.Layout.YAxisTitle}}
	}
	return json.Marshal(out)
}
