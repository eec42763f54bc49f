// Package prompt renders the instruction text sent to the code generation model.
package prompt

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"text/template"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// MissingValueError reports a placeholder that has no binding.
type MissingValueError struct {
	Template string
	Name     string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("prompt %q: missing value for placeholder %q", e.Template, e.Name)
}

// Template is prompt text with {{.name}} placeholders.
type Template struct {
	Name string
	Text string
}

// Placeholders returns the distinct placeholder names in order of first use.
func (t Template) Placeholders() []string {
	seen := map[string]struct{}{}
	names := make([]string, 0)
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.Text, -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		names = append(names, match[1])
	}
	return names
}

func (t Template) Render(values map[string]any) (string, error) {
	for _, name := range t.Placeholders() {
		if _, ok := values[name]; !ok {
			return "", &MissingValueError{Template: t.Name, Name: name}
		}
	}
	parsed, err := template.New(t.Name).Option("missingkey=error").Parse(t.Text)
	if err != nil {
		return "", fmt.Errorf("parse prompt %q: %w", t.Name, err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Prompt pairs a template with the values it is rendered with.
type Prompt struct {
	Template Template
	Values   map[string]any
}

func (p Prompt) Render() (string, error) {
	return p.Template.Render(p.Values)
}

// Keys returns the bound value names, sorted.
func (p Prompt) Keys() []string {
	keys := make([]string, 0, len(p.Values))
	for key := range p.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
