package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modelardb-sim/internal/registry"
)

func testRegistry() *registry.Registry {
	return registry.New([]registry.Table{
		{Name: "wind", Tags: registry.DefaultTags, Fields: registry.DefaultFields},
		{Name: "wind_5", ErrorBound: registry.ErrorBound{Percent: 5}, Tags: registry.DefaultTags, Fields: registry.DefaultFields},
		{Name: "wind_15", ErrorBound: registry.ErrorBound{Percent: 15}, Tags: registry.DefaultTags, Fields: registry.DefaultFields},
	}, nil)
}

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), testRegistry()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("PROMETHEUS_DATASOURCE_UID", "uid2")

	dir := t.TempDir()
	if err := Render(dir, testRegistry()); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "grafana-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	var doc struct {
		Panels []struct {
			Title string `json:"title"`
		} `json:"panels"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("dashboard is not valid JSON: %v\n%s", err, b)
	}
	if len(doc.Panels) != 6 {
		t.Fatalf("expected 3 metric panels and 3 table panels, got %d", len(doc.Panels))
	}
	if !strings.Contains(doc.Panels[4].Title, "wind_5 (5%)") {
		t.Fatalf("unexpected table panel title %q", doc.Panels[4].Title)
	}
	if !strings.Contains(string(b), "uid1") || !strings.Contains(string(b), "uid2") {
		t.Fatalf("datasource uids not rendered")
	}
	if !strings.Contains(string(b), `node_type=\"comparison\"`) {
		t.Fatalf("ratio query for comparison missing")
	}
}
