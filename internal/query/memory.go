package query

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// RowSource supplies the newest rows a simulated node holds.
type RowSource interface {
	Recent(url, table string, limit int) ([]telemetry.Row, error)
}

// Memory answers queries against simulated nodes. It understands
// SELECT * FROM <table> [LIMIT n].
type Memory struct {
	Registry *registry.Registry
	Rows     RowSource
}

var selectRe = regexp.MustCompile(`(?is)^\s*select\s+\*\s+from\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:limit\s+(\d+))?\s*;?\s*$`)

// Query implements Engine.
func (m Memory) Query(_ context.Context, url, sql string) (Result, error) {
	match := selectRe.FindStringSubmatch(sql)
	if match == nil {
		return Result{}, &Error{URL: url, Query: sql, Message: "only SELECT * FROM <table> [LIMIT n] is supported"}
	}
	t, ok := m.Registry.Table(match[1])
	if !ok {
		t, ok = m.Registry.Table(strings.ToLower(match[1]))
	}
	if !ok {
		return Result{}, &Error{URL: url, Query: sql, Message: "table " + match[1] + " not found"}
	}
	limit := 0
	if match[2] != "" {
		var err error
		if limit, err = strconv.Atoi(match[2]); err != nil {
			return Result{}, &Error{URL: url, Query: sql, Message: "LIMIT " + match[2] + " is out of range"}
		}
		if limit == 0 {
			return Result{ColumnNames: columnNames(t), Data: json.RawMessage("[]")}, nil
		}
	}
	rows, err := m.Rows.Recent(url, t.Name, limit)
	if err != nil {
		return Result{}, err
	}
	data, err := json.Marshal(rowObjects(t, rows))
	if err != nil {
		return Result{}, err
	}
	return Result{ColumnNames: columnNames(t), Data: data}, nil
}

// Tables implements Engine.
func (m Memory) Tables(_ context.Context, _ string) ([]TableSchema, error) {
	var out []TableSchema
	for _, t := range m.Registry.Tables() {
		s := TableSchema{Name: t.Name, Columns: []Column{{Name: "timestamp", DataType: "Timestamp"}}}
		for _, f := range t.Fields {
			s.Columns = append(s.Columns, Column{Name: f, DataType: "Float32"})
		}
		for _, tag := range t.Tags {
			s.Columns = append(s.Columns, Column{Name: tag, DataType: "Utf8"})
		}
		out = append(out, s)
	}
	return out, nil
}

func columnNames(t registry.Table) []string {
	names := []string{"timestamp"}
	names = append(names, t.Fields...)
	return append(names, t.Tags...)
}

func rowObjects(t registry.Table, rows []telemetry.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		obj := make(map[string]any, 1+len(t.Fields)+len(t.Tags))
		obj["timestamp"] = r.Timestamp.UnixMilli()
		for i, f := range t.Fields {
			if i < len(r.Fields) {
				obj[f] = r.Fields[i]
			}
		}
		for i, tag := range t.Tags {
			if i < len(r.Tags) {
				obj[tag] = r.Tags[i]
			}
		}
		out = append(out, obj)
	}
	return out
}
