package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// GenerateSpec builds the OpenAPI 3.1 document for the step challenge API.
// The spec is assembled in code so it can never drift from the router without
// someone touching both.
func GenerateSpec(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Step Challenge API",
			Description: "Self-hosted step challenge with magic-link authentication.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["sessionCookie"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: "stepd_session",
		},
	}
	doc.Components.SecuritySchemes["csrfToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-CSRF-Token",
		},
	}
	doc.Components.SecuritySchemes["mcpBearer"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}

	doc.Components.Schemas["Error"] = errorSchema()

	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	addStepsPaths(doc)
	addAdminPaths(doc)

	return doc
}

func errorSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    schemaOf("integer"),
							"message": schemaOf("string"),
						},
					},
				},
			},
		},
	}
}

func schemaOf(t string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{t}}}
}

func jsonResponse(description string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &description,
			Content:     openapi3.NewContentWithJSONSchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
		},
	}
}

func operation(summary string, statuses ...int) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Summary = summary
	op.Responses = openapi3.NewResponses()
	for _, code := range statuses {
		op.Responses.Set(statusText(code), jsonResponse(statusText(code)))
	}
	return op
}

func statusText(code int) string {
	switch code {
	case 200:
		return "200"
	case 201:
		return "201"
	case 302:
		return "302"
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	case 404:
		return "404"
	case 429:
		return "429"
	default:
		return "500"
	}
}

func addAuthPaths(doc *openapi3.T) {
	doc.Paths.Set("/auth/send-link", &openapi3.PathItem{
		Post: operation("Request a magic login link for an email address", 200, 400, 429),
	})
	doc.Paths.Set("/auth/login", &openapi3.PathItem{
		Get: withQueryParam(operation("Redeem a magic-link token and start a session", 302, 401, 429), "token"),
	})
	doc.Paths.Set("/auth/logout", &openapi3.PathItem{
		Post: operation("End the current session", 200),
	})
	doc.Paths.Set("/api/csrf-token", &openapi3.PathItem{
		Get: operation("Fetch the session's CSRF synchronizer token", 200, 401),
	})
	doc.Paths.Set("/api/me", &openapi3.PathItem{
		Get: operation("Get the authenticated user's profile", 200, 401),
	})
}

func addStepsPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/steps", &openapi3.PathItem{
		Get:  operation("List the caller's step entries", 200, 401),
		Post: operation("Record a step count for one day", 200, 400, 401, 403),
	})
	doc.Paths.Set("/api/steps/summary", &openapi3.PathItem{
		Get: operation("Summarize the caller's participation", 200, 401),
	})
}

func addAdminPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/admin/users", &openapi3.PathItem{
		Get: operation("List all users", 200, 401, 403),
	})
	doc.Paths.Set("/api/admin/users/{userID}", &openapi3.PathItem{
		Put: operation("Update a user's profile and admin flag", 200, 400, 403, 404),
	})
	doc.Paths.Set("/api/admin/create-magic-link", &openapi3.PathItem{
		Post: operation("Issue a login link on a user's behalf (audited)", 200, 400, 403, 429),
	})
	doc.Paths.Set("/api/admin/mcp-tokens", &openapi3.PathItem{
		Get:  operation("List MCP tokens", 200, 403),
		Post: operation("Create an MCP token (raw value shown once)", 201, 400, 403),
	})
	doc.Paths.Set("/api/admin/mcp-tokens/{tokenID}", &openapi3.PathItem{
		Put:    operation("Activate or revoke an MCP token", 200, 400, 403, 404),
		Delete: operation("Delete an MCP token", 200, 403, 404),
	})
	doc.Paths.Set("/api/admin/audit-log", &openapi3.PathItem{
		Get: operation("List audit events, newest first", 200, 403),
	})
}

func withQueryParam(op *openapi3.Operation, name string) *openapi3.Operation {
	param := openapi3.NewQueryParameter(name)
	param.Required = true
	param.Schema = schemaOf("string")
	op.AddParameter(param)
	return op
}
