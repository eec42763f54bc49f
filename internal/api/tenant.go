package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/chartgpt/chartgpt/internal/auth"
	"github.com/chartgpt/chartgpt/internal/chartgpt"
)

// tenantFromRequest prefers the authenticated identity, then X-Tenant-ID, then
// the default tenant.
func tenantFromRequest(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if strings.TrimSpace(identity.TenantID) != "" {
			return identity.TenantID, nil
		}
	}
	tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
	if tenantID == "" {
		return auth.DefaultTenant, nil
	}
	if strings.ContainsAny(tenantID, "/\\") || strings.Contains(tenantID, "..") {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return tenantID, nil
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.Allows(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

// authorize resolves the caller's tenant and checks role, writing the error
// response itself on failure.
func authorize(w http.ResponseWriter, r *http.Request, role string) (string, bool) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TENANT_INVALID", err.Error(), false, nil)
		return "", false
	}
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	return tenantID, true
}

func sessionFor(deps Dependencies, w http.ResponseWriter, r *http.Request, role string) (string, *chartgpt.ChartGPT, bool) {
	tenantID, ok := authorize(w, r, role)
	if !ok {
		return "", nil, false
	}
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return "", nil, false
	}
	session, err := deps.Sessions.Get(tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_ERROR", "failed to open tenant session", true, map[string]any{"details": err.Error()})
		return "", nil, false
	}
	return tenantID, session, true
}
