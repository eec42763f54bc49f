package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	// RoleAnalyst may load datasets and ask or plot questions.
	RoleAnalyst = "analyst"
	// RoleViewer may read columns, runs and stored charts.
	RoleViewer = "viewer"

	// DefaultTenant owns requests when authentication is disabled.
	DefaultTenant = "default"
)

var knownRoles = []string{RoleAnalyst, RoleViewer}

type Identity struct {
	TenantID string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Allows reports whether the identity may act as role. Analysts imply viewer access.
func (i Identity) Allows(role string) bool {
	if role == RoleViewer && i.HasRole(RoleAnalyst) {
		return true
	}
	return i.HasRole(role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:tenant:role|role entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		key, identity, err := parseStaticEntry(entry)
		if err != nil {
			return nil, err
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate static key for tenant %q", identity.TenantID)
		}
		validator.keys[key] = identity
	}
	return validator, nil
}

func parseStaticEntry(entry string) (string, Identity, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) != 3 {
		return "", Identity{}, fmt.Errorf("invalid static key entry %q: expected key:tenant:role|role", entry)
	}
	key := strings.TrimSpace(parts[0])
	tenant := strings.TrimSpace(parts[1])
	if key == "" || tenant == "" {
		return "", Identity{}, fmt.Errorf("invalid static key entry %q: empty key/tenant", entry)
	}
	if strings.ContainsAny(tenant, "/\\") || strings.Contains(tenant, "..") {
		return "", Identity{}, fmt.Errorf("invalid static key entry %q: tenant must not contain path separators", entry)
	}

	roles := make([]string, 0, 2)
	for _, role := range strings.Split(strings.TrimSpace(parts[2]), "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if !slices.Contains(knownRoles, role) {
			return "", Identity{}, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
	}
	slices.Sort(roles)
	return key, Identity{TenantID: tenant, Roles: roles}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
