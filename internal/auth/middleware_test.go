package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:acme:viewer|analyst, k2:globex:viewer")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.TenantID != "acme" {
		t.Fatalf("TenantID = %q", identity.TenantID)
	}
	if identity.Roles[0] != RoleAnalyst || !identity.HasRole(RoleViewer) {
		t.Fatalf("Roles = %v", identity.Roles)
	}

	viewer, _ := validator.Validate(context.Background(), "k2")
	if viewer.HasRole(RoleAnalyst) || !viewer.Allows(RoleViewer) {
		t.Fatalf("unexpected viewer roles: %v", viewer.Roles)
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{
		"invalid",
		"k1::analyst",
		"k1:acme:",
		"k1:acme:admin",
		"k1:../etc:analyst",
		"k1:acme:analyst,k1:globex:viewer",
	} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:acme:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, key := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("key %q: status = %d, want %d", key, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestMiddlewareInjectsIdentityFromBearer(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:acme:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.TenantID != "acme" {
			t.Fatalf("TenantID = %q", identity.TenantID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("Authorization", "bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestIdentityAllows(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		role  string
		want  bool
	}{
		{name: "viewer reads", roles: []string{RoleViewer}, role: RoleViewer, want: true},
		{name: "analyst reads", roles: []string{RoleAnalyst}, role: RoleViewer, want: true},
		{name: "viewer cannot ask", roles: []string{RoleViewer}, role: RoleAnalyst, want: false},
		{name: "analyst asks", roles: []string{RoleAnalyst}, role: RoleAnalyst, want: true},
		{name: "no roles", role: RoleViewer, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := Identity{TenantID: "acme", Roles: tt.roles}
			if got := identity.Allows(tt.role); got != tt.want {
				t.Fatalf("Allows(%q) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}
