package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	UploadsRoot = "uploads"
	ChartsRoot  = "charts"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildUploadPath returns the object key for a dataset uploaded by a tenant.
func BuildUploadPath(tenantID string, uploadedAt time.Time, extension string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	extension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(extension)), ".")
	if err := validatePathComponent(extension, "extension"); err != nil {
		return "", err
	}

	ts := uploadedAt.UTC()
	return path.Join(
		UploadsRoot,
		tenantID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("dataset-%d.%s", ts.UnixNano(), extension),
	), nil
}

// BuildChartPath returns the object key for a rendered chart of a run.
func BuildChartPath(tenantID string, runID int64) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if runID <= 0 {
		return "", fmt.Errorf("run id must be > 0")
	}
	return path.Join(ChartsRoot, tenantID, fmt.Sprintf("run-%010d.html", runID)), nil
}

// TenantPrefix is the listing prefix for one tenant under root.
func TenantPrefix(root, tenantID string) string {
	return root + "/" + tenantID + "/"
}

// TenantOf reports the tenant segment of a key under root.
func TenantOf(root, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, root+"/")
	if !ok {
		return "", false
	}
	tenantID, _, ok := strings.Cut(rest, "/")
	if !ok || validatePathComponent(tenantID, "tenant id") != nil {
		return "", false
	}
	return tenantID, true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
