package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Greptime forwards queries to the GreptimeDB HTTP SQL API of a node.
type Greptime struct {
	HTTP     *http.Client
	Database string
}

type sqlResponse struct {
	Code   int    `json:"code"`
	Error  string `json:"error"`
	Output []struct {
		AffectedRows *int `json:"affectedrows"`
		Records      *struct {
			Schema struct {
				ColumnSchemas []struct {
					Name     string `json:"name"`
					DataType string `json:"data_type"`
				} `json:"column_schemas"`
			} `json:"schema"`
			Rows [][]json.RawMessage `json:"rows"`
		} `json:"records"`
	} `json:"output"`
}

func (g Greptime) client() *http.Client {
	if g.HTTP != nil {
		return g.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (g Greptime) database() string {
	if g.Database == "" {
		return "public"
	}
	return g.Database
}

func (g Greptime) exec(ctx context.Context, base, sql string) (*sqlResponse, error) {
	endpoint := strings.TrimRight(base, "/") + "/v1/sql?db=" + url.QueryEscape(g.database())
	form := url.Values{"sql": {sql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("greptimedb %s: %w", base, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("greptimedb %s: read response: %w", base, err)
	}
	var out sqlResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &Error{URL: base, Query: sql, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("greptimedb %s: decode response: %w", base, err)
	}
	if out.Error != "" || resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &Error{URL: base, Query: sql, Message: msg}
	}
	return &out, nil
}

// Query implements Engine. Statements without records return an empty result.
func (g Greptime) Query(ctx context.Context, base, sql string) (Result, error) {
	out, err := g.exec(ctx, base, sql)
	if err != nil {
		return Result{}, err
	}
	res := Result{ColumnNames: []string{}, Data: json.RawMessage("[]")}
	if len(out.Output) == 0 || out.Output[0].Records == nil {
		return res, nil
	}
	rec := out.Output[0].Records
	for _, c := range rec.Schema.ColumnSchemas {
		res.ColumnNames = append(res.ColumnNames, c.Name)
	}
	objs := make([]map[string]json.RawMessage, 0, len(rec.Rows))
	for _, row := range rec.Rows {
		obj := make(map[string]json.RawMessage, len(row))
		for i, v := range row {
			if i < len(res.ColumnNames) {
				obj[res.ColumnNames[i]] = v
			}
		}
		objs = append(objs, obj)
	}
	data, err := json.Marshal(objs)
	if err != nil {
		return Result{}, err
	}
	res.Data = data
	return res, nil
}

// Tables implements Engine using information_schema.
func (g Greptime) Tables(ctx context.Context, base string) ([]TableSchema, error) {
	sql := fmt.Sprintf("SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = '%s' ORDER BY table_name",
		strings.ReplaceAll(g.database(), "'", "''"))
	out, err := g.exec(ctx, base, sql)
	if err != nil {
		return nil, err
	}
	var tables []TableSchema
	if len(out.Output) == 0 || out.Output[0].Records == nil {
		return tables, nil
	}
	for _, row := range out.Output[0].Records.Rows {
		if len(row) < 3 {
			continue
		}
		var table, column, dataType string
		if json.Unmarshal(row[0], &table) != nil || json.Unmarshal(row[1], &column) != nil || json.Unmarshal(row[2], &dataType) != nil {
			return nil, fmt.Errorf("greptimedb %s: unexpected information_schema row", base)
		}
		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, TableSchema{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: column, DataType: dataType})
	}
	return tables, nil
}
