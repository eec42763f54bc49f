package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %q", cfg.BaseURL)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (g *OpenAIGenerator) Model() string {
	return g.model
}

func (g *OpenAIGenerator) GenerateCode(ctx context.Context, prompt string, question string) (string, error) {
	if g.apiKey == "" {
		return "", g.fail(0, false, fmt.Errorf("api key is required"))
	}

	body, err := json.Marshal(buildChatPayload(g.model, g.temperature, prompt, question))
	if err != nil {
		return "", g.fail(0, false, fmt.Errorf("marshal chat payload: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", g.fail(0, false, fmt.Errorf("build chat request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", g.fail(0, !errors.Is(err, context.Canceled), fmt.Errorf("request chat completion: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", g.fail(resp.StatusCode, true, fmt.Errorf("read chat response body: %w", err))
	}
	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", g.fail(resp.StatusCode, retryable, fmt.Errorf("chat completion failed: %s", strings.TrimSpace(string(rawRespBody))))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", g.fail(resp.StatusCode, false, fmt.Errorf("decode chat completion response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", g.fail(resp.StatusCode, false, fmt.Errorf("empty chat completion choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) fail(status int, retryable bool, err error) error {
	return &GenerationError{Backend: BackendOpenAI, StatusCode: status, Retryable: retryable, Err: err}
}

func buildChatPayload(model string, temperature float64, prompt string, question string) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt},
			{"role": "user", "content": question},
		},
		"temperature": temperature,
	}
}
