package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
)

const plotlyScriptURL = "https://cdn.plot.ly/plotly-2.35.2.min.js"

var pageTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.ScriptURL}}"></script>
</head>
<body>
<div id="chart" style="width:100%;height:90vh;"></div>
<script>
var fig = {{.Figure}};
Plotly.newPlot("chart", fig.data, fig.layout);
</script>
</body>
</html>
`))

// RenderHTML renders a standalone page that draws the figure with plotly.js.
func RenderHTML(fig *Figure) ([]byte, error) {
	if fig == nil {
		return nil, fmt.Errorf("figure is required")
	}
	raw, err := json.Marshal(fig)
	if err != nil {
		return nil, fmt.Errorf("marshal figure: %w", err)
	}
	title := fig.Layout.Title
	if title == "" {
		title = "chart"
	}
	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, map[string]any{
		"Title":     title,
		"ScriptURL": plotlyScriptURL,
		"Figure":    template.JS(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("render chart page: %w", err)
	}
	return buf.Bytes(), nil
}
