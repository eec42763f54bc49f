// Package sandbox runs generated snippets against a dataset. Snippets are
// written in a small line-oriented language whose only capabilities are the
// dataset, SQL over it, charts and a handful of builtins.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/query"
)

const DatasetName = "df"

type ResultKind string

const (
	KindValue  ResultKind = "value"
	KindOutput ResultKind = "output"
)

// Result is either the value of the snippet's final expression or, when
// that expression cannot be evaluated, the text the snippet printed.
type Result struct {
	Kind            ResultKind
	Value           any
	Output          string
	Attempts        int
	FinalExpression string
}

// Text renders the result for display.
func (r Result) Text() string {
	if r.Kind == KindOutput {
		return r.Output
	}
	return Format(r.Value)
}

// ExecutionError reports a snippet that faulted on every allowed attempt.
type ExecutionError struct {
	Attempts int
	Line     int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("execute snippet: line %d (attempt %d): %v", e.Line, e.Attempts, e.Err)
	}
	return fmt.Sprintf("execute snippet (attempt %d): %v", e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Options struct {
	Engine   query.Engine
	RowLimit int
	// Extra adds or overrides bindings in every environment.
	Extra  map[string]any
	Logger *slog.Logger
}

type Runner struct {
	engine   query.Engine
	rowLimit int
	extra    map[string]any
	logger   *slog.Logger
}

func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: opts.Engine, rowLimit: opts.RowLimit, extra: opts.Extra, logger: logger}
}

// NewEnv builds a fresh environment binding table as df and writing printed
// text to out.
func (r *Runner) NewEnv(table *dataset.Table, out *bytes.Buffer) *Env {
	env := &Env{vars: map[string]any{}, out: out}
	for name, value := range builtins(env, r.engine, r.rowLimit) {
		env.vars[name] = value
	}
	env.vars["px"] = expressModule()
	env.vars["go"] = graphModule()
	for name, value := range r.extra {
		env.vars[name] = value
	}
	env.vars[DatasetName] = table
	return env
}

// Run executes snippet against table. With allowRetry a faulting snippet is
// run once more in a fresh environment before the fault is returned.
func (r *Runner) Run(ctx context.Context, snippet string, table *dataset.Table, allowRetry bool) (Result, error) {
	maxAttempts := 1
	if allowRetry {
		maxAttempts = 2
	}

	var (
		env *Env
		out *bytes.Buffer
	)
	attempt := 0
	for {
		attempt++
		out = &bytes.Buffer{}
		env = r.NewEnv(table, out)
		line, err := r.execute(ctx, env, snippet)
		if err == nil {
			break
		}
		if ctx.Err() != nil || attempt >= maxAttempts {
			return Result{}, &ExecutionError{Attempts: attempt, Line: line, Err: err}
		}
		r.logger.DebugContext(ctx, "snippet attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("line", line),
			slog.String("error", err.Error()),
		)
	}

	final := FinalExpression(snippet)
	result := Result{Attempts: attempt, FinalExpression: final}
	value, err := r.evalFinal(ctx, env, final)
	if err != nil {
		r.logger.DebugContext(ctx, "final expression not evaluable, using captured output",
			slog.String("expression", final),
			slog.String("reason", err.Error()),
			slog.Int("output_bytes", out.Len()),
		)
		result.Kind = KindOutput
		result.Output = out.String()
		return result, nil
	}
	result.Kind = KindValue
	result.Value = value
	return result, nil
}

func (r *Runner) execute(ctx context.Context, env *Env, snippet string) (line int, err error) {
	defer recoverFault(&err)
	stmts, err := parseProgram(snippet)
	if err != nil {
		var syntaxErr *SyntaxError
		if errors.As(err, &syntaxErr) {
			return syntaxErr.Line, err
		}
		return 0, err
	}
	for _, s := range stmts {
		line = s.stmtLine()
		if err := ctx.Err(); err != nil {
			return line, err
		}
		if err := env.exec(ctx, s); err != nil {
			return line, err
		}
	}
	return 0, nil
}

func (r *Runner) evalFinal(ctx context.Context, env *Env, final string) (value any, err error) {
	defer recoverFault(&err)
	if final == "" {
		return nil, fmt.Errorf("snippet is empty")
	}
	node, err := parseExpression(final)
	if err != nil {
		return nil, err
	}
	return env.eval(ctx, node)
}

// recoverFault turns a panic raised while interpreting into an error.
func recoverFault(err *error) {
	if recovered := recover(); recovered != nil {
		*err = fmt.Errorf("runtime fault: %v", recovered)
	}
}

// FinalExpression returns the snippet's last non-empty line, with a
// print(...) wrapper removed.
func FinalExpression(snippet string) string {
	lines := strings.Split(strings.TrimSpace(snippet), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasPrefix(last, "print(") && strings.HasSuffix(last, ")") {
		last = strings.TrimSpace(last[len("print(") : len(last)-1])
	}
	return last
}
