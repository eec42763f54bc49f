package chartgpt

import (
	"errors"
	"fmt"

	"github.com/chartgpt/chartgpt/internal/codegen"
	"github.com/chartgpt/chartgpt/internal/prompt"
	"github.com/chartgpt/chartgpt/internal/sandbox"
)

type Phase string

const (
	PhaseLoad     Phase = "load"
	PhaseRender   Phase = "render"
	PhaseGenerate Phase = "generate"
	PhaseExecute  Phase = "execute"
)

// NotLoadedError is returned by calls that need a dataset before Load.
type NotLoadedError struct {
	Op string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("%s: no dataset loaded", e.Op)
}

// PhaseOf reports which step of a run produced err, or "" when err is nil or
// did not come from a run.
func PhaseOf(err error) Phase {
	var (
		notLoaded  *NotLoadedError
		missing    *prompt.MissingValueError
		generation *codegen.GenerationError
		execution  *sandbox.ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notLoaded):
		return PhaseLoad
	case errors.As(err, &missing):
		return PhaseRender
	case errors.As(err, &generation):
		return PhaseGenerate
	case errors.As(err, &execution):
		return PhaseExecute
	default:
		return ""
	}
}
