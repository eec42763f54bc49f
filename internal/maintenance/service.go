// Package maintenance sweeps the object store of uploads and chart pages that
// run history no longer references, and checks that recorded artifacts exist.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/chartgpt/chartgpt/internal/history"
	"github.com/chartgpt/chartgpt/internal/storage"
)

// History is the part of the run history the sweeper reads.
type History interface {
	ListRuns(ctx context.Context, tenantID string, limit int) ([]history.RunRecord, error)
	LatestDatasetLoad(ctx context.Context, tenantID string) (history.DatasetLoad, error)
}

type Config struct {
	RetentionInterval time.Duration
	// KeepRuns is how many of a tenant's newest runs keep their chart pages.
	KeepRuns int
	// SafetyAge protects objects written recently, including charts stored
	// before their run row points at them.
	SafetyAge time.Duration
}

type Service struct {
	History     History
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	TenantsScanned   int `json:"tenants_scanned"`
	ObjectsScanned   int `json:"objects_scanned"`
	CandidateObjects int `json:"candidate_objects"`
	ObjectsDeleted   int `json:"objects_deleted"`
	Failures         int `json:"failures"`
}

type IntegritySummary struct {
	TenantsScanned      int `json:"tenants_scanned"`
	ArtifactsChecked    int `json:"artifacts_checked"`
	MissingArtifacts    int `json:"missing_artifacts"`
	DatasetsChecked     int `json:"datasets_checked"`
	MissingDatasets     int `json:"missing_datasets"`
	OperationalFailures int `json:"operational_failures"`
}

// Run sweeps on every retention tick until ctx is done. Each sweep is
// followed by an integrity check of what was kept.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunRetentionOnce(ctx, "")
			if err != nil {
				s.logError(ctx, "retention cycle failed", err, summary)
			} else {
				s.logInfo(ctx, "retention cycle completed", summary)
			}
			integrity, err := s.RunIntegrityCheckOnce(ctx, "")
			if err != nil {
				s.logError(ctx, "integrity check failed", err, integrity)
			} else if integrity.MissingArtifacts > 0 || integrity.MissingDatasets > 0 {
				if s.Logger != nil {
					s.Logger.WarnContext(ctx, "integrity check found missing objects", slog.Any("summary", integrity))
				}
			}
		}
	}
}

// RunRetentionOnce deletes a tenant's uploads other than the currently loaded
// dataset and chart pages of runs older than the newest KeepRuns. An empty
// tenantID sweeps every tenant found in the store.
func (s *Service) RunRetentionOnce(ctx context.Context, tenantID string) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.History == nil {
		return RetentionSummary{}, fmt.Errorf("history is required")
	}
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}

	tenants, err := s.listTargetTenants(ctx, tenantID)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return RetentionSummary{}, err
	}

	summary := RetentionSummary{TenantsScanned: len(tenants)}
	failures := make([]string, 0)
	cutoff := s.Clock().Add(-s.Config.SafetyAge)

	for _, tenant := range tenants {
		keep, err := s.referencedKeys(ctx, tenant)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("tenant %s: %v", tenant, err))
			continue
		}

		for _, root := range []string{storage.UploadsRoot, storage.ChartsRoot} {
			objects, err := s.ObjectStore.List(ctx, storage.TenantPrefix(root, tenant))
			if err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("tenant %s list %s: %v", tenant, root, err))
				continue
			}
			summary.ObjectsScanned += len(objects)

			for _, object := range objects {
				if _, ok := keep[object.Key]; ok {
					continue
				}
				if object.LastModified.IsZero() || !object.LastModified.Before(cutoff) {
					continue
				}
				summary.CandidateObjects++
				if err := s.ObjectStore.Delete(ctx, object.Key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
					summary.Failures++
					failures = append(failures, fmt.Sprintf("tenant %s delete object %s: %v", tenant, object.Key, err))
					continue
				}
				summary.ObjectsDeleted++
				retentionObjectsDeletedTotal.WithLabelValues(root).Inc()
			}
		}
	}

	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce stats every chart artifact of the newest KeepRuns
// runs and the latest loaded dataset object.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context, tenantID string) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.History == nil {
		return IntegritySummary{}, fmt.Errorf("history is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	tenants, err := s.listTargetTenants(ctx, tenantID)
	if err != nil {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return IntegritySummary{}, err
	}

	summary := IntegritySummary{TenantsScanned: len(tenants)}
	failures := make([]string, 0)

	for _, tenant := range tenants {
		runs, err := s.History.ListRuns(ctx, tenant, s.Config.KeepRuns)
		if err != nil {
			summary.OperationalFailures++
			failures = append(failures, fmt.Sprintf("tenant %s list runs: %v", tenant, err))
			continue
		}
		for _, run := range runs {
			if run.ArtifactKey == "" {
				continue
			}
			summary.ArtifactsChecked++
			missing, err := s.missing(ctx, run.ArtifactKey)
			if err != nil {
				summary.OperationalFailures++
				failures = append(failures, fmt.Sprintf("tenant %s stat %s: %v", tenant, run.ArtifactKey, err))
				continue
			}
			if missing {
				summary.MissingArtifacts++
			}
		}

		load, err := s.History.LatestDatasetLoad(ctx, tenant)
		if errors.Is(err, history.ErrNotFound) {
			continue
		}
		if err != nil {
			summary.OperationalFailures++
			failures = append(failures, fmt.Sprintf("tenant %s latest dataset: %v", tenant, err))
			continue
		}
		if load.ObjectKey == "" {
			continue
		}
		summary.DatasetsChecked++
		missing, err := s.missing(ctx, load.ObjectKey)
		if err != nil {
			summary.OperationalFailures++
			failures = append(failures, fmt.Sprintf("tenant %s stat %s: %v", tenant, load.ObjectKey, err))
			continue
		}
		if missing {
			summary.MissingDatasets++
		}
	}

	if missing := summary.MissingArtifacts + summary.MissingDatasets; missing > 0 {
		integrityMissingObjectsTotal.Add(float64(missing))
	}
	if len(failures) > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("integrity check encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) referencedKeys(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	keep := map[string]struct{}{}
	runs, err := s.History.ListRuns(ctx, tenantID, s.Config.KeepRuns)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for _, run := range runs {
		if run.ArtifactKey != "" {
			keep[run.ArtifactKey] = struct{}{}
		}
	}

	load, err := s.History.LatestDatasetLoad(ctx, tenantID)
	switch {
	case errors.Is(err, history.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("latest dataset: %w", err)
	case load.ObjectKey != "":
		keep[load.ObjectKey] = struct{}{}
	}
	return keep, nil
}

func (s *Service) missing(ctx context.Context, key string) (bool, error) {
	_, err := s.ObjectStore.Stat(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return true, nil
	}
	return false, err
}

// listTargetTenants derives tenants from the keys under the upload and chart
// roots, since tenants have no registry of their own.
func (s *Service) listTargetTenants(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID != "" {
		return []string{tenantID}, nil
	}
	seen := map[string]struct{}{}
	for _, root := range []string{storage.UploadsRoot, storage.ChartsRoot} {
		objects, err := s.ObjectStore.List(ctx, root+"/")
		if err != nil {
			return nil, fmt.Errorf("list tenants under %s: %w", root, err)
		}
		for _, object := range objects {
			if tenant, ok := storage.TenantOf(root, object.Key); ok {
				seen[tenant] = struct{}{}
			}
		}
	}
	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.KeepRuns < 1 {
		s.Config.KeepRuns = 50
	}
	if s.Config.SafetyAge <= 0 {
		s.Config.SafetyAge = 24 * time.Hour
	}
}

func (s *Service) logInfo(ctx context.Context, message string, summary any) {
	if s.Logger != nil {
		s.Logger.InfoContext(ctx, message, slog.Any("summary", summary))
	}
}

func (s *Service) logError(ctx context.Context, message string, err error, summary any) {
	if s.Logger != nil {
		s.Logger.ErrorContext(ctx, message, slog.Any("error", err), slog.Any("summary", summary))
	}
}
