// Package history records completed ask and plot runs and dataset loads per tenant.
package history

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("not found")

// RunRecord is one persisted ask or plot run.
type RunRecord struct {
	RunID        int64     `json:"run_id"`
	TenantID     string    `json:"tenant_id"`
	Mode         string    `json:"mode"`
	Question     string    `json:"question"`
	Snippet      string    `json:"snippet"`
	Status       string    `json:"status"`
	ResultKind   string    `json:"result_kind,omitempty"`
	ResultText   string    `json:"result_text,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	GenerationMs int64     `json:"generation_ms"`
	ExecutionMs  int64     `json:"execution_ms"`
	ArtifactKey  string    `json:"artifact_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DatasetLoad is one dataset replacement for a tenant session.
type DatasetLoad struct {
	LoadID    int64     `json:"load_id"`
	TenantID  string    `json:"tenant_id"`
	Source    string    `json:"source"`
	ObjectKey string    `json:"object_key,omitempty"`
	Columns   []string  `json:"columns"`
	RowCount  int64     `json:"row_count"`
	LoadedAt  time.Time `json:"loaded_at"`
}

type Repository interface {
	RecordRun(ctx context.Context, in RunRecord) (RunRecord, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]RunRecord, error)
	SetRunArtifact(ctx context.Context, tenantID string, runID int64, artifactKey string) error
	RecordDatasetLoad(ctx context.Context, in DatasetLoad) (DatasetLoad, error)
	LatestDatasetLoad(ctx context.Context, tenantID string) (DatasetLoad, error)
	HealthCheck(ctx context.Context) error
}

// Memory is a process-local Repository used when no history database is configured.
// Each tenant keeps at most capacity runs; older runs are dropped.
type Memory struct {
	mu       sync.Mutex
	capacity int
	nextRun  int64
	nextLoad int64
	runs     map[string][]RunRecord
	loads    map[string]DatasetLoad
	now      func() time.Time
}

type MemoryOption func(*Memory)

// WithMemoryClock sets the clock that stamps runs and loads without a timestamp.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(capacity int, opts ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	m := &Memory{
		capacity: capacity,
		runs:     map[string][]RunRecord{},
		loads:    map[string]DatasetLoad{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) RecordRun(_ context.Context, in RunRecord) (RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRun++
	in.RunID = m.nextRun
	if in.CreatedAt.IsZero() {
		in.CreatedAt = m.now().UTC()
	}
	runs := append(m.runs[in.TenantID], in)
	if len(runs) > m.capacity {
		runs = append([]RunRecord(nil), runs[len(runs)-m.capacity:]...)
	}
	m.runs[in.TenantID] = runs
	return in, nil
}

// ListRuns returns the newest runs first.
func (m *Memory) ListRuns(_ context.Context, tenantID string, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[tenantID]
	if limit <= 0 || limit > len(runs) {
		limit = len(runs)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (m *Memory) SetRunArtifact(_ context.Context, tenantID string, runID int64, artifactKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[tenantID]
	for i := range runs {
		if runs[i].RunID == runID {
			runs[i].ArtifactKey = artifactKey
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RecordDatasetLoad(_ context.Context, in DatasetLoad) (DatasetLoad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLoad++
	in.LoadID = m.nextLoad
	in.Columns = append([]string(nil), in.Columns...)
	if in.LoadedAt.IsZero() {
		in.LoadedAt = m.now().UTC()
	}
	m.loads[in.TenantID] = in
	return in, nil
}

func (m *Memory) LatestDatasetLoad(_ context.Context, tenantID string) (DatasetLoad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	load, ok := m.loads[tenantID]
	if !ok {
		return DatasetLoad{}, ErrNotFound
	}
	return load, nil
}

func (m *Memory) HealthCheck(context.Context) error {
	return nil
}
