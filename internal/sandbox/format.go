package sandbox

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chartgpt/chartgpt/internal/dataset"
)

const maxPrintedRows = 60

// formatTable prints a table with a leading row index, right aligned. Long
// tables show their first and last rows around an ellipsis.
func formatTable(t *dataset.Table) string {
	if t == nil {
		return "None"
	}
	if len(t.Columns) == 0 {
		return "Empty DataFrame"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprint(w, "\t")
	for _, column := range t.Columns {
		_, _ = fmt.Fprintf(w, "%s\t", column)
	}
	_, _ = fmt.Fprintln(w)

	writeRow := func(index int) {
		_, _ = fmt.Fprintf(w, "%d\t", index)
		for _, value := range t.Rows[index] {
			_, _ = fmt.Fprintf(w, "%s\t", cellText(value))
		}
		_, _ = fmt.Fprintln(w)
	}
	if len(t.Rows) <= maxPrintedRows {
		for i := range t.Rows {
			writeRow(i)
		}
	} else {
		half := maxPrintedRows / 2
		for i := 0; i < half; i++ {
			writeRow(i)
		}
		_, _ = fmt.Fprint(w, "...\t")
		for range t.Columns {
			_, _ = fmt.Fprint(w, "...\t")
		}
		_, _ = fmt.Fprintln(w)
		for i := len(t.Rows) - half; i < len(t.Rows); i++ {
			writeRow(i)
		}
	}
	_ = w.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	out := strings.Join(lines, "\n")
	if len(t.Rows) > maxPrintedRows {
		out += fmt.Sprintf("\n\n[%d rows x %d columns]", len(t.Rows), len(t.Columns))
	}
	return out
}

func cellText(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NaN"
	case string:
		return typed
	default:
		return Repr(typed)
	}
}

// formatSpec applies the subset of format specs used in f-strings:
// ",", ".Nf", ",.Nf", ".N%" and "d".
func formatSpec(value any, spec string) (string, error) {
	if spec == "" {
		return Format(value), nil
	}
	grouping := strings.HasPrefix(spec, ",")
	rest := strings.TrimPrefix(spec, ",")

	switch {
	case rest == "" && grouping:
		switch typed := value.(type) {
		case int64:
			return groupThousands(strconv.FormatInt(typed, 10)), nil
		case float64:
			return groupThousands(formatFloat(typed)), nil
		}
	case rest == "d":
		if typed, ok := value.(int64); ok {
			text := strconv.FormatInt(typed, 10)
			if grouping {
				text = groupThousands(text)
			}
			return text, nil
		}
	case strings.HasPrefix(rest, ".") && (strings.HasSuffix(rest, "f") || strings.HasSuffix(rest, "%")):
		precision, err := strconv.Atoi(rest[1 : len(rest)-1])
		if err != nil {
			return "", fmt.Errorf("invalid format spec %q", spec)
		}
		number, ok := dataset.ToFloat(value)
		if !ok {
			return "", fmt.Errorf("format spec %q needs a number, got %s", spec, typeName(value))
		}
		suffix := ""
		if strings.HasSuffix(rest, "%") {
			number *= 100
			suffix = "%"
		}
		text := strconv.FormatFloat(number, 'f', precision, 64)
		if grouping {
			text = groupThousands(text)
		}
		return text + suffix, nil
	}
	return "", fmt.Errorf("unsupported format spec %q for %s", spec, typeName(value))
}

func groupThousands(number string) string {
	sign := ""
	if strings.HasPrefix(number, "-") {
		sign, number = "-", number[1:]
	}
	intPart, frac := number, ""
	if dot := strings.IndexByte(number, '.'); dot >= 0 {
		intPart, frac = number[:dot], number[dot:]
	}
	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return sign + b.String() + frac
}
