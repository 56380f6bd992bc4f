package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modelardb-sim/internal/registry"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := Default()
	if err != nil {
		t.Fatalf("Default() returned error: %v", err)
	}
	reg, err := cat.Registry()
	if err != nil {
		t.Fatalf("Registry() returned error: %v", err)
	}
	if got := len(reg.Tables()); got != 3 {
		t.Fatalf("expected 3 tables, got %d", got)
	}
	if got := len(reg.EdgeNodes(registry.Primary)); got != 4 {
		t.Errorf("expected 4 primary edge nodes, got %d", got)
	}
	if got := len(reg.NodesOfMode(registry.Local)); got != 1 {
		t.Errorf("expected 1 local node, got %d", got)
	}
	tbl, _ := reg.Table("wind_15")
	if tbl.ErrorBound.Percent != 15 {
		t.Errorf("wind_15 bound = %v", tbl.ErrorBound)
	}
	if tbl.BytesPerRow() != 56 {
		t.Errorf("wind_15 bytes per row = %d", tbl.BytesPerRow())
	}
}

func TestLoadJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `{
  // one table, one edge node
  "tables": [{"name": "wind_1", "error_bound": "1%", "fields": ["a", "b"]},],
  "nodes": [{"type": "modelardb", "url": "grpc://127.0.0.1:1", "server_mode": "edge"}],
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cat.Tables) != 1 || cat.Tables[0].Name != "wind_1" {
		t.Fatalf("unexpected tables: %+v", cat.Tables)
	}
	reg, err := cat.Registry()
	if err != nil {
		t.Fatalf("Registry(): %v", err)
	}
	tbl, _ := reg.Table("wind_1")
	if tbl.BytesPerRow() != 16 {
		t.Errorf("bytes per row = %d, want 16", tbl.BytesPerRow())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
tables:
  - name: wind
    error_bound: lossless
nodes:
  - server_mode: local
  - type: comparison
    url: grpc://127.0.0.1:2
    server_mode: cloud
    latitude: 51.5
    longitude: 0.1
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cat.Nodes) != 2 || cat.Nodes[1].Type != "comparison" {
		t.Fatalf("unexpected nodes: %+v", cat.Nodes)
	}
}

func TestSchemaRejectsBadCatalog(t *testing.T) {
	cases := map[string]string{
		"no tables":    `{"tables": [], "nodes": []}`,
		"bad bound":    `{"tables": [{"name": "w", "error_bound": "five"}], "nodes": []}`,
		"bad mode":     `{"tables": [{"name": "w", "error_bound": "lossless"}], "nodes": [{"server_mode": "fog"}]}`,
		"unknown key":  `{"tables": [{"name": "w", "error_bound": "lossless", "color": "red"}], "nodes": []}`,
		"bad latitude": `{"tables": [{"name": "w", "error_bound": "lossless"}], "nodes": [{"server_mode": "local", "latitude": 120}]}`,
	}
	for name, data := range cases {
		if _, err := Parse("catalog.json", []byte(data)); err == nil {
			t.Errorf("%s: expected schema error", name)
		}
	}
}

func TestRegistryRules(t *testing.T) {
	cat := &Catalog{
		Tables: []TableSpec{
			{Name: "wind", ErrorBound: "lossless"},
			{Name: "wind", ErrorBound: "5%"},
		},
		Nodes: []NodeSpec{
			{ServerMode: "local"},
			{ServerMode: "local"},
			{ServerMode: "edge"},
			{ServerMode: "edge", URL: "grpc://a"},
			{ServerMode: "cloud", URL: "grpc://a"},
		},
	}
	_, err := cat.Registry()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"duplicate name", "at most one local", "requires a url", "duplicate url"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
