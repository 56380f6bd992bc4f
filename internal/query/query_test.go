package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

type fakeRows struct {
	rows []telemetry.Row
	err  error
}

func (f fakeRows) Recent(_, _ string, limit int) ([]telemetry.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func memory(rows []telemetry.Row) Memory {
	reg := registry.New([]registry.Table{{Name: "wind", Tags: []string{"park_id"}, Fields: []string{"wind_speed"}}}, nil)
	return Memory{Registry: reg, Rows: fakeRows{rows: rows}}
}

func TestMemorySelect(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	m := memory([]telemetry.Row{
		{Timestamp: ts, Tags: []string{"p1"}, Fields: []float32{3.5}},
		{Timestamp: ts, Tags: []string{"p1"}, Fields: []float32{4}},
	})
	res, err := m.Query(context.Background(), "", "SELECT * FROM wind LIMIT 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.ColumnNames) != 3 || res.ColumnNames[0] != "timestamp" {
		t.Fatalf("columns = %v", res.ColumnNames)
	}
	var rows []map[string]any
	if err := json.Unmarshal(res.Data, &rows); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(rows) != 1 || rows[0]["wind_speed"].(float64) != 4 || rows[0]["park_id"] != "p1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestMemoryEmptyIsNotError(t *testing.T) {
	res, err := memory(nil).Query(context.Background(), "", "select * from wind;")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result, got %s", res.Data)
	}
}

func TestMemoryBadSQL(t *testing.T) {
	_, err := memory(nil).Query(context.Background(), "", "DROP TABLE wind")
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	_, err = memory(nil).Query(context.Background(), "", "SELECT * FROM missing")
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *Error for unknown table, got %v", err)
	}
}

func TestGreptimeQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sql" || r.URL.Query().Get("db") != "public" {
			t.Errorf("unexpected request %s", r.URL)
		}
		switch r.FormValue("sql") {
		case "SELECT 1":
			w.Write([]byte(`{"output":[{"records":{"schema":{"column_schemas":[{"name":"v","data_type":"Int64"}]},"rows":[[1],[2]]}}]}`))
		case "SELECT * FROM empty":
			w.Write([]byte(`{"output":[{"records":{"schema":{"column_schemas":[{"name":"v","data_type":"Int64"}]},"rows":[]}}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":1004,"error":"Failed to parse SQL"}`))
		}
	}))
	defer srv.Close()
	g := Greptime{HTTP: srv.Client()}

	res, err := g.Query(context.Background(), srv.URL, "SELECT 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if string(res.Data) != `[{"v":1},{"v":2}]` {
		t.Fatalf("data = %s", res.Data)
	}

	res, err = g.Query(context.Background(), srv.URL, "SELECT * FROM empty")
	if err != nil || !res.Empty() || len(res.ColumnNames) != 1 {
		t.Fatalf("empty result: %+v, %v", res, err)
	}

	_, err = g.Query(context.Background(), srv.URL, "SELEC")
	var qerr *Error
	if !errors.As(err, &qerr) || qerr.Message != "Failed to parse SQL" {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestGreptimeTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":[{"records":{"schema":{"column_schemas":[]},"rows":[
			["wind","ts","TimestampMillisecond"],["wind","wind_speed","Float32"],["wind_5","ts","TimestampMillisecond"]]}}]}`))
	}))
	defer srv.Close()
	tables, err := Greptime{HTTP: srv.Client()}.Tables(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if len(tables) != 2 || len(tables[0].Columns) != 2 || tables[1].Name != "wind_5" {
		t.Fatalf("tables = %+v", tables)
	}
}

func TestRouter(t *testing.T) {
	m := memory(nil)
	r := Router{Local: m, Remote: Greptime{}, Serves: func(url string) bool { return url == "" }}
	if _, err := r.Tables(context.Background(), "local"); err != nil {
		t.Fatalf("local tables: %v", err)
	}
	if _, err := r.Query(context.Background(), "ftp://x", "SELECT 1"); err == nil {
		t.Fatalf("expected routing error")
	}
}

func TestRouterLocalURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":[{"records":{"schema":{"column_schemas":[{"name":"v","data_type":"Int64"}]},"rows":[[7]]}}]}`))
	}))
	defer srv.Close()
	r := Router{Remote: Greptime{HTTP: srv.Client()}, LocalURL: srv.URL}
	res, err := r.Query(context.Background(), "local", "SELECT 7")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if string(res.Data) != `[{"v":7}]` {
		t.Fatalf("data = %s", res.Data)
	}
}

func TestMemoryLimitOutOfRange(t *testing.T) {
	m := memory([]telemetry.Row{{Timestamp: time.UnixMilli(0), Tags: []string{"p1"}, Fields: []float32{1}}})
	_, err := m.Query(context.Background(), "", "SELECT * FROM wind LIMIT 99999999999999999999999")
	var qerr *Error
	if !errors.As(err, &qerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}
