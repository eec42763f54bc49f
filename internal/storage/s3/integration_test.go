//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chartgpt/chartgpt/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("CHARTGPT_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("CHARTGPT_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("CHARTGPT_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("CHARTGPT_TEST_S3_BUCKET", "chartgpt-it"),
		AccessKeyID:      envOr("CHARTGPT_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("CHARTGPT_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	upload := "uploads/tenant-1/date=2026-05-01/dataset-1.csv"
	neighbour := "uploads/tenant-10/date=2026-05-01/dataset-2.csv"
	payload := []byte("country,revenue\nUS,1\n")
	for _, key := range []string{upload, neighbour} {
		if _, err := storage.PutBytes(ctx, store, key, payload, "text/csv"); err != nil {
			t.Fatalf("PutBytes(%s) error = %v", key, err)
		}
	}
	t.Cleanup(func() {
		_ = store.Delete(context.Background(), neighbour)
	})

	listed, err := store.List(ctx, storage.TenantPrefix(storage.UploadsRoot, "tenant-1"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 1 || listed[0].Key != upload {
		t.Fatalf("List() = %+v, want only %q", listed, upload)
	}

	info, err := store.Stat(ctx, upload)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Key != upload || info.Size != int64(len(payload)) {
		t.Fatalf("Stat() = %+v", info)
	}

	reader, err := store.Get(ctx, upload)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(readPayload), string(payload))
	}

	if err := store.Delete(ctx, upload); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, upload); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
	if _, err := store.Get(ctx, upload); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
