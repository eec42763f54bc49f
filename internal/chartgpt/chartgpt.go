// Package chartgpt answers natural-language questions about a loaded dataset
// by generating a snippet with a text model and executing it.
package chartgpt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chartgpt/chartgpt/internal/codegen"
	"github.com/chartgpt/chartgpt/internal/dataset"
	"github.com/chartgpt/chartgpt/internal/observability"
	"github.com/chartgpt/chartgpt/internal/prompt"
	"github.com/chartgpt/chartgpt/internal/sandbox"
)

type Mode string

const (
	ModeAsk  Mode = "ask"
	ModePlot Mode = "plot"
)

// Executor runs a snippet against a table.
type Executor interface {
	Run(ctx context.Context, snippet string, table *dataset.Table, allowRetry bool) (sandbox.Result, error)
}

// Run records one ask or plot call for inspection.
type Run struct {
	Mode               Mode
	Question           string
	Prompt             string
	Reply              string
	Snippet            string
	Result             sandbox.Result
	Err                error
	StartedAt          time.Time
	GenerationDuration time.Duration
	ExecutionDuration  time.Duration
}

// Status is "ok" for a successful run, otherwise the failing phase.
func (r Run) Status() string {
	if r.Err == nil {
		return "ok"
	}
	if phase := PhaseOf(r.Err); phase != "" {
		return string(phase)
	}
	return "error"
}

type ChartGPT struct {
	llm            string
	conversational bool
	verbose        bool
	codegenConfig  codegen.Config
	generator      codegen.Generator
	runner         Executor
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.RWMutex
	table   *dataset.Table
	lastRun *Run
}

type Option func(*ChartGPT)

// WithLLM selects the code generation backend by name.
func WithLLM(name string) Option {
	return func(c *ChartGPT) { c.llm = name }
}

// WithConversational is recorded but conversational memory is not implemented.
func WithConversational(enabled bool) Option {
	return func(c *ChartGPT) { c.conversational = enabled }
}

func WithVerbose(enabled bool) Option {
	return func(c *ChartGPT) { c.verbose = enabled }
}

// WithCodegenConfig configures the generator built when none is supplied.
func WithCodegenConfig(cfg codegen.Config) Option {
	return func(c *ChartGPT) { c.codegenConfig = cfg }
}

func WithGenerator(generator codegen.Generator) Option {
	return func(c *ChartGPT) { c.generator = generator }
}

func WithRunner(runner Executor) Option {
	return func(c *ChartGPT) { c.runner = runner }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *ChartGPT) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *ChartGPT) { c.now = now }
}

func New(opts ...Option) (*ChartGPT, error) {
	c := &ChartGPT{llm: codegen.BackendOpenAI, conversational: true, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.generator == nil {
		cfg := c.codegenConfig
		cfg.Backend = c.llm
		generator, err := codegen.New(cfg)
		if err != nil {
			return nil, err
		}
		c.generator = generator
	}
	if c.runner == nil {
		c.runner = sandbox.NewRunner(sandbox.Options{Logger: c.logger})
	}
	return c, nil
}

func (c *ChartGPT) LLM() string          { return c.llm }
func (c *ChartGPT) Conversational() bool { return c.conversational }
func (c *ChartGPT) Verbose() bool        { return c.verbose }

// Load replaces the dataset unconditionally.
func (c *ChartGPT) Load(table *dataset.Table) {
	c.mu.Lock()
	c.table = table
	c.mu.Unlock()
	observability.SetDatasetRows(table.Len())
}

func (c *ChartGPT) Dataset() (*dataset.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return nil, &NotLoadedError{Op: "dataset"}
	}
	return c.table, nil
}

func (c *ChartGPT) Columns() ([]string, error) {
	table, err := c.Dataset()
	if err != nil {
		return nil, &NotLoadedError{Op: "columns"}
	}
	return append([]string(nil), table.Columns...), nil
}

// LastRun returns the most recent run that produced a snippet.
func (c *ChartGPT) LastRun() (Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRun == nil {
		return Run{}, false
	}
	return *c.lastRun, true
}

func (c *ChartGPT) Ask(ctx context.Context, question string) (sandbox.Result, error) {
	run, err := c.Execute(ctx, ModeAsk, question)
	return run.Result, err
}

func (c *ChartGPT) Plot(ctx context.Context, question string) (sandbox.Result, error) {
	run, err := c.Execute(ctx, ModePlot, question)
	return run.Result, err
}

// Execute performs one ask or plot call and returns its full record. Both
// modes share the same flow.
func (c *ChartGPT) Execute(ctx context.Context, mode Mode, question string) (Run, error) {
	run := Run{Mode: mode, Question: question, StartedAt: c.now()}
	finish := func(err error) (Run, error) {
		run.Err = err
		observability.ObserveRun(string(mode), run.Status())
		return run, err
	}

	c.mu.RLock()
	table := c.table
	c.mu.RUnlock()
	if table == nil {
		return finish(&NotLoadedError{Op: string(mode)})
	}

	rendered, err := prompt.NewGenerateCode(table.Columns, run.StartedAt).Render()
	if err != nil {
		return finish(err)
	}
	run.Prompt = rendered

	generationStart := time.Now()
	reply, err := c.generator.GenerateCode(ctx, rendered, question)
	run.GenerationDuration = time.Since(generationStart)
	observability.ObserveGeneration(c.llm, run.GenerationDuration, err)
	if err != nil {
		var generationErr *codegen.GenerationError
		if !errors.As(err, &generationErr) {
			err = &codegen.GenerationError{Backend: c.llm, Err: err}
		}
		c.logger.WarnContext(ctx, "code generation failed",
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()),
		)
		return finish(err)
	}
	run.Reply = reply
	run.Snippet = codegen.Extract(reply, prompt.StartCodeTag, prompt.EndCodeTag)

	executionStart := time.Now()
	result, err := c.runner.Run(ctx, run.Snippet, table, false)
	run.ExecutionDuration = time.Since(executionStart)
	run.Result = result

	attempts := result.Attempts
	var executionErr *sandbox.ExecutionError
	if errors.As(err, &executionErr) {
		attempts = executionErr.Attempts
	}
	observability.ObserveExecution(attempts, run.ExecutionDuration, err == nil && result.Kind == sandbox.KindOutput)

	run, err = finish(err)
	c.mu.Lock()
	stored := run
	c.lastRun = &stored
	c.mu.Unlock()

	if err != nil {
		c.logger.InfoContext(ctx, "snippet execution failed",
			slog.String("mode", string(mode)),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		return run, err
	}
	c.logger.InfoContext(ctx, "run completed",
		slog.String("mode", string(mode)),
		slog.String("result_kind", string(result.Kind)),
		slog.Int("attempts", result.Attempts),
		slog.Duration("generation", run.GenerationDuration),
		slog.Duration("execution", run.ExecutionDuration),
	)
	return run, nil
}
