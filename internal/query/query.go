// Package query passes ad-hoc SQL through to the engine behind a node URL.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result is a query result. Data is a JSON array of row objects.
type Result struct {
	ColumnNames []string        `json:"column_names"`
	Data        json.RawMessage `json:"data"`
}

// Empty reports whether the query succeeded without returning rows.
func (r Result) Empty() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) == 0 || bytes.Equal(d, []byte("[]")) || bytes.Equal(d, []byte("null"))
}

// Column describes one table column.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// TableSchema describes one table on a node.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Error is a failure reported by the query engine, such as bad SQL. It is
// returned verbatim to callers, unlike transport errors.
type Error struct {
	URL     string `json:"url"`
	Query   string `json:"query,omitempty"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("query on %s: %s", e.URL, e.Message)
}

// Engine runs queries against the node at a URL.
type Engine interface {
	Query(ctx context.Context, url, sql string) (Result, error)
	Tables(ctx context.Context, url string) ([]TableSchema, error)
}

// Router dispatches by URL: simulated nodes go to Local, http(s) URLs to
// Remote.
type Router struct {
	Local  Engine
	Remote Engine
	// Serves reports whether Local knows the URL.
	Serves func(url string) bool
	// LocalURL, if set, is where queries for the local node go.
	LocalURL string
}

func (r Router) pick(url string) (Engine, string, error) {
	if url == "local" {
		url = ""
	}
	if url == "" && r.LocalURL != "" {
		url = r.LocalURL
	}
	if r.Local != nil && (r.Serves == nil || r.Serves(url)) {
		return r.Local, url, nil
	}
	if r.Remote != nil && (strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
		return r.Remote, url, nil
	}
	return nil, url, fmt.Errorf("no query engine for %q", url)
}

// Query runs sql against the node at url.
func (r Router) Query(ctx context.Context, url, sql string) (Result, error) {
	e, url, err := r.pick(url)
	if err != nil {
		return Result{}, err
	}
	return e.Query(ctx, url, sql)
}

// Tables lists the tables of the node at url.
func (r Router) Tables(ctx context.Context, url string) ([]TableSchema, error) {
	e, url, err := r.pick(url)
	if err != nil {
		return nil, err
	}
	return e.Tables(ctx, url)
}
