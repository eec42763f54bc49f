package sample

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploaderPostsCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/datasets" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "text/csv" {
			t.Fatalf("Content-Type = %q", ct)
		}
		if tenant := r.Header.Get("X-Tenant-ID"); tenant != "tenant-dev" {
			t.Fatalf("X-Tenant-ID = %q", tenant)
		}
		if key := r.Header.Get("X-API-Key"); key != "secret" {
			t.Fatalf("X-API-Key = %q", key)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.HasPrefix(string(body), "a,b\n") {
			t.Fatalf("body = %q", body)
		}
		_, _ = w.Write([]byte(`{"object_key":"uploads/tenant-dev/date=2026-05-01/dataset-1.csv","columns":["a","b"],"row_count":1}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL + "/"
	cfg.APIKey = "secret"
	cfg.TenantID = "tenant-dev"

	uploader, err := NewUploader(cfg, server.Client())
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	result, err := uploader.Upload(context.Background(), []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if result.RowCount != 1 || len(result.Columns) != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestUploaderReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	uploader, err := NewUploader(cfg, server.Client())
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	_, err = uploader.Upload(context.Background(), []byte("a\n1\n"))
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("Upload() error = %v, want status=403", err)
	}
}

func TestNewUploaderRequiresBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIBaseURL = " "
	if _, err := NewUploader(cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
