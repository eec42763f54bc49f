package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chartgpt/chartgpt/internal/chart"
	"github.com/chartgpt/chartgpt/internal/dataset"
)

// maxStringBytes caps strings built by repetition.
const maxStringBytes = 1 << 20

// Env is the namespace one execution attempt runs in.
type Env struct {
	vars map[string]any
	out  io.Writer
}

func (e *Env) Lookup(name string) (any, bool) {
	value, ok := e.vars[name]
	return value, ok
}

func (e *Env) Set(name string, value any) {
	e.vars[name] = value
}

// Tables returns every table-valued binding by name.
func (e *Env) Tables() map[string]*dataset.Table {
	tables := map[string]*dataset.Table{}
	for name, value := range e.vars {
		if table, ok := value.(*dataset.Table); ok && table != nil {
			tables[name] = table
		}
	}
	return tables
}

func (e *Env) exec(ctx context.Context, s stmt) error {
	switch typed := s.(type) {
	case *importStmt:
		return nil
	case *assignStmt:
		value, err := e.eval(ctx, typed.expr)
		if err != nil {
			return err
		}
		e.vars[typed.name] = value
		return nil
	case *exprStmt:
		_, err := e.eval(ctx, typed.expr)
		return err
	default:
		return fmt.Errorf("unsupported statement %T", s)
	}
}

func (e *Env) eval(ctx context.Context, node expr) (any, error) {
	switch typed := node.(type) {
	case *literalExpr:
		return typed.value, nil
	case *listExpr:
		items := make([]any, 0, len(typed.items))
		for _, item := range typed.items {
			value, err := e.eval(ctx, item)
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		return items, nil
	case *nameExpr:
		value, ok := e.vars[typed.name]
		if !ok {
			return nil, fmt.Errorf("name %q is not defined", typed.name)
		}
		return value, nil
	case *attrExpr:
		target, err := e.eval(ctx, typed.target)
		if err != nil {
			return nil, err
		}
		return getAttr(target, typed.name)
	case *callExpr:
		return e.call(ctx, typed)
	case *indexExpr:
		target, err := e.eval(ctx, typed.target)
		if err != nil {
			return nil, err
		}
		key, err := e.eval(ctx, typed.key)
		if err != nil {
			return nil, err
		}
		return index(target, key)
	case *unaryExpr:
		operand, err := e.eval(ctx, typed.operand)
		if err != nil {
			return nil, err
		}
		return unary(typed.op, operand)
	case *binaryExpr:
		left, err := e.eval(ctx, typed.left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(ctx, typed.right)
		if err != nil {
			return nil, err
		}
		return binary(typed.op, left, right)
	case *fstringExpr:
		var b strings.Builder
		for _, part := range typed.parts {
			if part.value == nil {
				b.WriteString(part.text)
				continue
			}
			value, err := e.eval(ctx, part.value)
			if err != nil {
				return nil, err
			}
			text, err := formatSpec(value, part.format)
			if err != nil {
				return nil, err
			}
			b.WriteString(text)
		}
		return b.String(), nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", node)
	}
}

func (e *Env) call(ctx context.Context, node *callExpr) (any, error) {
	fn, err := e.eval(ctx, node.fn)
	if err != nil {
		return nil, err
	}
	builtin, ok := fn.(*Builtin)
	if !ok {
		return nil, fmt.Errorf("%s object is not callable", typeName(fn))
	}
	args := Args{Positional: make([]any, 0, len(node.args)), Keywords: map[string]any{}}
	for _, arg := range node.args {
		value, err := e.eval(ctx, arg)
		if err != nil {
			return nil, err
		}
		args.Positional = append(args.Positional, value)
	}
	for _, kw := range node.keywords {
		value, err := e.eval(ctx, kw.value)
		if err != nil {
			return nil, err
		}
		args.Keywords[kw.name] = value
	}
	value, err := builtin.Fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", builtin.Name, err)
	}
	return value, nil
}

func getAttr(target any, name string) (any, error) {
	switch typed := target.(type) {
	case *Module:
		if member, ok := typed.Members[name]; ok {
			return member, nil
		}
		return nil, fmt.Errorf("module %s has no attribute %q", typed.Name, name)
	case *dataset.Table:
		return tableAttr(typed, name)
	case *chart.Figure:
		return figureAttr(typed, name)
	case []any:
		return listAttr(typed, name)
	}
	return nil, fmt.Errorf("%s object has no attribute %q", typeName(target), name)
}

func index(target, key any) (any, error) {
	switch typed := target.(type) {
	case *dataset.Table:
		switch k := key.(type) {
		case string:
			return typed.Column(k)
		case []any:
			columns := make([]string, 0, len(k))
			for _, item := range k {
				column, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("column selector must be strings, got %s", typeName(item))
				}
				columns = append(columns, column)
			}
			return selectColumns(typed, columns)
		}
	case []any:
		if i, ok := key.(int64); ok {
			position, err := normalizeIndex(i, len(typed))
			if err != nil {
				return nil, err
			}
			return typed[position], nil
		}
	case string:
		if i, ok := key.(int64); ok {
			runes := []rune(typed)
			position, err := normalizeIndex(i, len(runes))
			if err != nil {
				return nil, err
			}
			return string(runes[position]), nil
		}
	}
	return nil, fmt.Errorf("%s indices must be valid, got %s", typeName(target), typeName(key))
}

func normalizeIndex(i int64, length int) (int, error) {
	position := int(i)
	if position < 0 {
		position += length
	}
	if position < 0 || position >= length {
		return 0, fmt.Errorf("index %d out of range", i)
	}
	return position, nil
}

func selectColumns(t *dataset.Table, columns []string) (*dataset.Table, error) {
	indexes := make([]int, 0, len(columns))
	for _, column := range columns {
		i, err := t.ColumnIndex(column)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, i)
	}
	rows := make([][]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		selected := make([]any, 0, len(indexes))
		for _, i := range indexes {
			selected = append(selected, row[i])
		}
		rows = append(rows, selected)
	}
	return dataset.New(columns, rows)
}

func unary(op tokenType, operand any) (any, error) {
	switch typed := operand.(type) {
	case int64:
		if op == tokMinus {
			return -typed, nil
		}
		return typed, nil
	case float64:
		if op == tokMinus {
			return -typed, nil
		}
		return typed, nil
	}
	return nil, fmt.Errorf("bad operand type for unary %s: %s", op, typeName(operand))
}

func binary(op tokenType, left, right any) (any, error) {
	switch op {
	case tokEq:
		return valuesEqual(left, right), nil
	case tokNeq:
		return !valuesEqual(left, right), nil
	case tokLess, tokLessEq, tokGreater, tokGreaterEq:
		return compare(op, left, right)
	}

	if l, ok := left.(int64); ok {
		if r, ok := right.(int64); ok {
			switch op {
			case tokPlus:
				return l + r, nil
			case tokMinus:
				return l - r, nil
			case tokMult:
				return l * r, nil
			case tokDiv:
				if r == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return float64(l) / float64(r), nil
			}
		}
	}
	if l, ok := dataset.ToFloat(left); ok {
		if r, ok := dataset.ToFloat(right); ok {
			switch op {
			case tokPlus:
				return l + r, nil
			case tokMinus:
				return l - r, nil
			case tokMult:
				return l * r, nil
			case tokDiv:
				if r == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return l / r, nil
			}
		}
	}

	switch l := left.(type) {
	case string:
		if r, ok := right.(string); ok && op == tokPlus {
			return l + r, nil
		}
		if r, ok := right.(int64); ok && op == tokMult {
			if r < 0 {
				r = 0
			}
			if len(l) > 0 && r > maxStringBytes/int64(len(l)) {
				return nil, fmt.Errorf("string repeat exceeds %d bytes", maxStringBytes)
			}
			return strings.Repeat(l, int(r)), nil
		}
	case []any:
		if r, ok := right.([]any); ok && op == tokPlus {
			return append(append([]any(nil), l...), r...), nil
		}
	}
	return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, typeName(left), typeName(right))
}

func compare(op tokenType, left, right any) (any, error) {
	_, leftNum := dataset.ToFloat(left)
	_, rightNum := dataset.ToFloat(right)
	ok := (leftNum && rightNum) ||
		(isScalar(left) && left != nil && dataset.KindOf(left) == dataset.KindOf(right))
	if !ok {
		return nil, fmt.Errorf("%s not supported between %s and %s", op, typeName(left), typeName(right))
	}
	cmp := dataset.Compare(left, right)
	switch op {
	case tokLess:
		return cmp < 0, nil
	case tokLessEq:
		return cmp <= 0, nil
	case tokGreater:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}
