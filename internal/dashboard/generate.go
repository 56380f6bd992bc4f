// Package dashboard renders a Grafana dashboard for a catalog: throughput and
// ratio panels from the simulator's Prometheus metrics, and one time series
// panel per table read from the GreptimeDB mirror.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"modelardb-sim/internal/registry"
)

//go:embed grafana-dashboard.json.tmpl
var templates embed.FS

const templateFile = "grafana-dashboard.json.tmpl"

type tableData struct {
	Name       string
	ErrorBound string
	Field      string
	Tags       string
}

type data struct {
	Tables []tableData
	Types  []string
}

// Render executes the dashboard template for reg and writes the result to
// outDir. Datasource UIDs come from GREPTIMEDB_DATASOURCE_UID and
// PROMETHEUS_DATASOURCE_UID.
func Render(outDir string, reg *registry.Registry) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		"add":  func(a, b int) int { return a + b },
		"mul":  func(a, b int) int { return a * b },
		"half": func(a int) int { return a / 2 },
		"odd":  func(a int) bool { return a%2 == 1 },
	}
	t, err := template.New(templateFile).Funcs(funcMap).ParseFS(templates, templateFile)
	if err != nil {
		return err
	}

	var d data
	for _, tb := range reg.Tables() {
		td := tableData{Name: tb.Name, ErrorBound: tb.ErrorBound.String(), Tags: strings.Join(tb.Tags, ", ")}
		if len(tb.Fields) > 0 {
			td.Field = tb.Fields[0]
		}
		d.Tables = append(d.Tables, td)
	}
	for _, typ := range registry.DeploymentTypes {
		d.Types = append(d.Types, string(typ))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(outDir, strings.TrimSuffix(templateFile, ".tmpl"))
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := t.Execute(f, d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
