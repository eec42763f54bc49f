package prompt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRenderMissingValue(t *testing.T) {
	tmpl := Template{Name: "greeting", Text: "Hello {{.name}}, today is {{ .day }}."}
	_, err := tmpl.Render(map[string]any{"name": "Ada"})
	var missing *MissingValueError
	if !errors.As(err, &missing) {
		t.Fatalf("Render() error = %v, want MissingValueError", err)
	}
	if missing.Name != "day" || missing.Template != "greeting" {
		t.Fatalf("missing = %+v", missing)
	}
}

func TestRenderSubstitutesValues(t *testing.T) {
	tmpl := Template{Name: "greeting", Text: "Hello {{.name}}, {{.name}} again."}
	got, err := tmpl.Render(map[string]any{"name": "Ada", "unused": 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Hello Ada, Ada again." {
		t.Fatalf("Render() = %q", got)
	}
	if names := tmpl.Placeholders(); len(names) != 1 || names[0] != "name" {
		t.Fatalf("Placeholders() = %v", names)
	}
}

func TestGenerateCodePrompt(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	p := NewGenerateCode([]string{"country", "revenue"}, now)

	first, err := p.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := p.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first != second {
		t.Fatal("rendering is not deterministic")
	}
	for _, want := range []string{"Today is 2026-03-09.", "columns: country, revenue.", "<startCode> exactly", "<endCode> exactly"} {
		if !strings.Contains(first, want) {
			t.Fatalf("prompt missing %q:\n%s", want, first)
		}
	}
	if strings.Contains(first, "{{") {
		t.Fatalf("prompt has unrendered placeholders:\n%s", first)
	}
}

func TestGenerateCodePlaceholdersAreBound(t *testing.T) {
	p := NewGenerateCode(nil, time.Now())
	for _, name := range GenerateCode.Placeholders() {
		if _, ok := p.Values[name]; !ok {
			t.Fatalf("placeholder %q is unbound", name)
		}
	}
	if got := p.Keys(); len(got) != 4 {
		t.Fatalf("Keys() = %v", got)
	}
}
