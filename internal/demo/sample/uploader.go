package sample

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type UploadResult struct {
	ObjectKey string   `json:"object_key"`
	Columns   []string `json:"columns"`
	RowCount  int      `json:"row_count"`
}

// Uploader posts generated CSV datasets to the API so a tenant session has
// something to ask about.
type Uploader struct {
	cfg  Config
	http *http.Client
}

func NewUploader(cfg Config, client *http.Client) (*Uploader, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return &Uploader{cfg: cfg, http: client}, nil
}

func (u *Uploader) Upload(ctx context.Context, csvData []byte) (UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.APIBaseURL+"/v1/datasets", bytes.NewReader(csvData))
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/csv")
	if u.cfg.TenantID != "" {
		req.Header.Set("X-Tenant-ID", u.cfg.TenantID)
	}
	if u.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", u.cfg.APIKey)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, fmt.Errorf("upload dataset failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return UploadResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
