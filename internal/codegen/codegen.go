// Package codegen asks a generative text model for a snippet and isolates it
// from the surrounding reply.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const BackendOpenAI = "openai"

// Generator returns the model's reply to a rendered prompt and a question.
type Generator interface {
	GenerateCode(ctx context.Context, prompt string, question string) (string, error)
}

type Config struct {
	Backend     string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// GenerationError wraps every failure to obtain a reply from the model.
type GenerationError struct {
	Backend    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generate code via %s: status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generate code via %s: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

var ErrUnknownBackend = errors.New("unknown llm backend")

// New builds the generator for cfg.Backend. An empty backend selects openai.
func New(cfg Config) (Generator, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendOpenAI
	}
	switch backend {
	case BackendOpenAI:
		return NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
