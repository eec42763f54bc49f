package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryListRunsNewestFirstPerTenant(t *testing.T) {
	repo := NewMemory(10)
	ctx := context.Background()
	for _, question := range []string{"q1", "q2", "q3"} {
		if _, err := repo.RecordRun(ctx, RunRecord{TenantID: "acme", Question: question}); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}
	if _, err := repo.RecordRun(ctx, RunRecord{TenantID: "other", Question: "x"}); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := repo.ListRuns(ctx, "acme", 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Question != "q3" || runs[1].Question != "q2" {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if runs[0].RunID <= runs[1].RunID {
		t.Fatalf("run ids not increasing: %d <= %d", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be set")
	}
}

func TestMemoryDropsRunsBeyondCapacity(t *testing.T) {
	repo := NewMemory(2)
	ctx := context.Background()
	for _, question := range []string{"a", "b", "c"} {
		_, _ = repo.RecordRun(ctx, RunRecord{TenantID: "acme", Question: question})
	}
	runs, _ := repo.ListRuns(ctx, "acme", 0)
	if len(runs) != 2 || runs[1].Question != "b" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestMemoryLatestDatasetLoad(t *testing.T) {
	repo := NewMemory(0)
	ctx := context.Background()
	if _, err := repo.LatestDatasetLoad(ctx, "acme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	columns := []string{"region", "sales"}
	if _, err := repo.RecordDatasetLoad(ctx, DatasetLoad{TenantID: "acme", Source: "upload", Columns: columns, RowCount: 3}); err != nil {
		t.Fatalf("RecordDatasetLoad() error = %v", err)
	}
	columns[0] = "changed"
	load, err := repo.LatestDatasetLoad(ctx, "acme")
	if err != nil {
		t.Fatalf("LatestDatasetLoad() error = %v", err)
	}
	if load.Columns[0] != "region" || load.RowCount != 3 {
		t.Fatalf("unexpected load: %+v", load)
	}
}

func TestMemorySetRunArtifact(t *testing.T) {
	repo := NewMemory(10)
	ctx := context.Background()
	run, _ := repo.RecordRun(ctx, RunRecord{TenantID: "acme", Mode: "plot"})

	if err := repo.SetRunArtifact(ctx, "acme", run.RunID, "charts/acme/run-0000000001.html"); err != nil {
		t.Fatalf("SetRunArtifact() error = %v", err)
	}
	runs, _ := repo.ListRuns(ctx, "acme", 1)
	if runs[0].ArtifactKey != "charts/acme/run-0000000001.html" {
		t.Fatalf("ArtifactKey = %q", runs[0].ArtifactKey)
	}
	if err := repo.SetRunArtifact(ctx, "other", run.RunID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other tenant, got %v", err)
	}
}

func TestMemoryStampsWithInjectedClock(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	repo := NewMemory(0, WithMemoryClock(func() time.Time { return at }))
	ctx := context.Background()

	run, err := repo.RecordRun(ctx, RunRecord{TenantID: "acme", Question: "q"})
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	load, err := repo.RecordDatasetLoad(ctx, DatasetLoad{TenantID: "acme", ObjectKey: "uploads/acme/a.csv"})
	if err != nil {
		t.Fatalf("RecordDatasetLoad() error = %v", err)
	}
	if !run.CreatedAt.Equal(at) || run.CreatedAt.Location() != time.UTC {
		t.Fatalf("CreatedAt = %v", run.CreatedAt)
	}
	if !load.LoadedAt.Equal(at) {
		t.Fatalf("LoadedAt = %v", load.LoadedAt)
	}

	explicit := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	load, err = repo.RecordDatasetLoad(ctx, DatasetLoad{TenantID: "acme", LoadedAt: explicit})
	if err != nil {
		t.Fatalf("RecordDatasetLoad() error = %v", err)
	}
	if !load.LoadedAt.Equal(explicit) {
		t.Fatalf("explicit LoadedAt overwritten: %v", load.LoadedAt)
	}
}
