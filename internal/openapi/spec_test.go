package openapi

import "testing"

func TestGenerateSpec(t *testing.T) {
	doc := GenerateSpec("http://localhost:8080")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("got version %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Title != "Step Challenge API" {
		t.Errorf("unexpected title %q", doc.Info.Title)
	}

	for _, path := range []string{
		"/auth/send-link",
		"/auth/login",
		"/auth/logout",
		"/api/csrf-token",
		"/api/steps",
		"/api/steps/summary",
		"/api/admin/users",
		"/api/admin/create-magic-link",
		"/api/admin/mcp-tokens",
		"/api/admin/audit-log",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("path %s missing from spec", path)
		}
	}

	// The dev-only link retrieval endpoint must never be documented.
	if doc.Paths.Find("/dev/get-magic-link") != nil {
		t.Error("dev endpoint leaked into the public spec")
	}

	for _, scheme := range []string{"sessionCookie", "csrfToken", "mcpBearer"} {
		if doc.Components.SecuritySchemes[scheme] == nil {
			t.Errorf("security scheme %s missing", scheme)
		}
	}
}
