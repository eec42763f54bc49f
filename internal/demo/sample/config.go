package sample

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

type Config struct {
	APIBaseURL  string
	APIKey      string
	TenantID    string
	Rows        int
	Days        int
	StartDate   time.Time
	Seed        int64
	Format      string
	Output      string
	Upload      bool
	HTTPTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:  "http://localhost:8080",
		TenantID:    "default",
		Rows:        500,
		Days:        90,
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:        time.Now().UTC().UnixNano(),
		Format:      FormatCSV,
		Output:      "sales.csv",
		HTTPTimeout: 30 * time.Second,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "CHARTGPT_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHARTGPT_DEMO_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHARTGPT_DEMO_TENANT_ID", &cfg.TenantID); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "CHARTGPT_DEMO_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "CHARTGPT_DEMO_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "CHARTGPT_DEMO_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "CHARTGPT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHARTGPT_DEMO_FORMAT", &cfg.Format); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHARTGPT_DEMO_OUTPUT", &cfg.Output); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "CHARTGPT_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHARTGPT_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Rows <= 0 {
		return fmt.Errorf("CHARTGPT_DEMO_ROWS must be > 0")
	}
	if c.Days <= 0 {
		return fmt.Errorf("CHARTGPT_DEMO_DAYS must be > 0")
	}
	switch c.Format {
	case FormatCSV, FormatParquet:
	default:
		return fmt.Errorf("CHARTGPT_DEMO_FORMAT must be csv or parquet, got %q", c.Format)
	}
	if c.Upload {
		if c.Format != FormatCSV {
			return fmt.Errorf("CHARTGPT_DEMO_UPLOAD requires csv format")
		}
		if strings.TrimSpace(c.APIBaseURL) == "" {
			return fmt.Errorf("CHARTGPT_DEMO_API_URL is required for upload")
		}
		if c.HTTPTimeout <= 0 {
			return fmt.Errorf("CHARTGPT_DEMO_HTTP_TIMEOUT must be > 0")
		}
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
