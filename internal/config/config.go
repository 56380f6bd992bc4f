// JSON/YAML catalog loader with CUE validation integration
package config

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"modelardb-sim/internal/registry"
)

//go:embed catalog.cue default_catalog.jsonc
var content embed.FS

// TableSpec is a table as written in the catalog.
type TableSpec struct {
	Name       string   `json:"name" yaml:"name"`
	ErrorBound string   `json:"error_bound" yaml:"error_bound"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Fields     []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// NodeSpec is a node as written in the catalog.
type NodeSpec struct {
	Type       string  `json:"type,omitempty" yaml:"type,omitempty"`
	URL        string  `json:"url,omitempty" yaml:"url,omitempty"`
	ServerMode string  `json:"server_mode" yaml:"server_mode"`
	Bucket     string  `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Latitude   float64 `json:"latitude" yaml:"latitude"`
	Longitude  float64 `json:"longitude" yaml:"longitude"`
}

// Catalog is the root configuration for tables and nodes.
type Catalog struct {
	Tables []TableSpec `json:"tables" yaml:"tables"`
	Nodes  []NodeSpec  `json:"nodes" yaml:"nodes"`
}

// Load reads a catalog file, validates it against the CUE schema, and decodes it.
// Files ending in .yaml or .yml are YAML; anything else is JSON with optional
// comments and trailing commas.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := Parse(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded catalog", "path", path, "tables", len(cat.Tables), "nodes", len(cat.Nodes))
	return cat, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	data, err := content.ReadFile("default_catalog.jsonc")
	if err != nil {
		return nil, err
	}
	return Parse("default_catalog.jsonc", data)
}

// Parse decodes catalog bytes. name picks the format by extension and labels
// schema errors.
func Parse(name string, data []byte) (*Catalog, error) {
	jsonBytes, err := toJSON(name, data)
	if err != nil {
		return nil, err
	}
	if err := ValidateWithCue(name, jsonBytes); err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(jsonBytes, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &cat, nil
}

func toJSON(name string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML catalog: %w", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("cannot convert YAML catalog: %w", err)
		}
		return out, nil
	default:
		return jsonc.ToJSON(data), nil
	}
}

// Registry converts the catalog into a registry, applying the rules the schema
// cannot express. Missing tags and fields default to the wind turbine schema.
func (c *Catalog) Registry() (*registry.Registry, error) {
	var errs []error

	tables := make([]registry.Table, 0, len(c.Tables))
	seenTables := map[string]bool{}
	for _, ts := range c.Tables {
		if seenTables[ts.Name] {
			errs = append(errs, fmt.Errorf("table %q: duplicate name", ts.Name))
			continue
		}
		seenTables[ts.Name] = true
		bound, err := registry.ParseErrorBound(ts.ErrorBound)
		if err != nil {
			errs = append(errs, fmt.Errorf("table %q: %w", ts.Name, err))
			continue
		}
		t := registry.Table{Name: ts.Name, ErrorBound: bound, Tags: ts.Tags, Fields: ts.Fields}
		if len(t.Tags) == 0 {
			t.Tags = slices.Clone(registry.DefaultTags)
		}
		if len(t.Fields) == 0 {
			t.Fields = slices.Clone(registry.DefaultFields)
		}
		if dup := duplicateColumn(t); dup != "" {
			errs = append(errs, fmt.Errorf("table %q: duplicate column %q", ts.Name, dup))
			continue
		}
		tables = append(tables, t)
	}

	nodes := make([]registry.Node, 0, len(c.Nodes))
	seenURLs := map[string]bool{}
	locals := 0
	for i, ns := range c.Nodes {
		mode, err := registry.ParseServerMode(ns.ServerMode)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			continue
		}
		typ, err := registry.ParseDeploymentType(ns.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			continue
		}
		switch {
		case mode == registry.Local:
			locals++
			if ns.URL != "" {
				errs = append(errs, fmt.Errorf("node %d: local node must not have a url", i))
			}
		case ns.URL == "":
			errs = append(errs, fmt.Errorf("node %d: %s node requires a url", i, mode))
		case seenURLs[ns.URL]:
			errs = append(errs, fmt.Errorf("node %d: duplicate url %q", i, ns.URL))
		}
		seenURLs[ns.URL] = true
		nodes = append(nodes, registry.Node{
			Type:     typ,
			URL:      ns.URL,
			Mode:     mode,
			Bucket:   ns.Bucket,
			Position: registry.Position{Latitude: ns.Latitude, Longitude: ns.Longitude},
		})
	}
	if locals > 1 {
		errs = append(errs, fmt.Errorf("at most one local node is allowed, found %d", locals))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return registry.New(tables, nodes), nil
}

func duplicateColumn(t registry.Table) string {
	seen := map[string]bool{"timestamp": true}
	for _, c := range slices.Concat(t.Tags, t.Fields) {
		if seen[c] {
			return c
		}
		seen[c] = true
	}
	return ""
}
