package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chartgpt/chartgpt/internal/cli/chartgptctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("CHARTGPT_CLI_TIMEOUT")), 90*time.Second)
	options := chartgptctl.Options{
		BaseURL:  envOr("CHARTGPT_API_URL", "http://localhost:8080"),
		APIKey:   strings.TrimSpace(os.Getenv("CHARTGPT_API_KEY")),
		TenantID: strings.TrimSpace(os.Getenv("CHARTGPT_TENANT_ID")),
		Timeout:  timeout,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		ReadFile: os.ReadFile,
	}

	os.Exit(chartgptctl.Run(context.Background(), os.Args[1:], options))
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid CHARTGPT_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
