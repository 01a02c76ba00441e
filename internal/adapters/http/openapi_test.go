package http_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/cheapgasoline/fuelmap/api"
)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(api.OpenAPI)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	return spec
}

// TestOpenAPISpec validates the OpenAPI document.
func TestOpenAPISpec(t *testing.T) {
	spec := loadOpenAPI(t)

	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/stations",
		"/v1/stations/nearest",
		"/v1/stations/nearest.geojson",
		"/v1/stations/{id}",
		"/v1/stations/{id}/directions",
		"/v1/stations/{id}/share.png",
		"/v1/catalog/status",
		"/graphql",
	}
	for _, path := range expectedPaths {
		if item := spec.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found", path)
		}
	}

	expectedSchemas := []string{
		"GeoPoint",
		"Station",
		"RankedStation",
		"Selection",
		"Directions",
		"CatalogStatus",
		"APIError",
		"Pagination",
	}
	for _, schema := range expectedSchemas {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI valid: %d paths, %d schemas", len(spec.Paths.Map()), len(spec.Components.Schemas))
}

// TestOpenAPIInfo verifies document metadata.
func TestOpenAPIInfo(t *testing.T) {
	spec := loadOpenAPI(t)

	if spec.Info.Title != "Fuelmap API" {
		t.Errorf("expected title 'Fuelmap API', got %q", spec.Info.Title)
	}
	if spec.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", spec.Info.Version)
	}
	if spec.Info.Description == "" {
		t.Error("expected non-empty description")
	}
	if len(spec.Servers) == 0 {
		t.Fatal("expected at least one server")
	}
}

var fiberParam = regexp.MustCompile(`:([a-zA-Z_]+)`)

// TestOpenAPICoversRoutes checks that every registered /v1 GET route is documented.
func TestOpenAPICoversRoutes(t *testing.T) {
	spec := loadOpenAPI(t)
	app := setupApp(makeDeps(t))

	for _, r := range app.GetRoutes(true) {
		if r.Method != "GET" || !strings.HasPrefix(r.Path, "/v1/") {
			continue
		}
		path := fiberParam.ReplaceAllString(r.Path, "{$1}")
		item := spec.Paths.Find(path)
		if item == nil || item.Get == nil {
			t.Errorf("route GET %s is not documented", path)
		}
	}
}
