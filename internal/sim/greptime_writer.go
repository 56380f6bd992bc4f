package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// DefaultGreptimePort is the GreptimeDB gRPC port.
const DefaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter mirrors ingested batches into GreptimeDB, one GreptimeDB
// table per catalog table.
type GreptimeDBWriter struct {
	client greptimeClient
	reg    *registry.Registry
}

// NewGreptimeDBWriter connects to endpoint (host or host:port) and database.
func NewGreptimeDBWriter(endpoint, database string, reg *registry.Registry) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{client: client, reg: reg}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb endpoint %q: bad port", endpoint)
	}
	return host, port, nil
}

// Write inserts a batch. Tag columns become GreptimeDB tags, fields become
// FLOAT32 columns, and ts is the time index.
func (w *GreptimeDBWriter) Write(ctx context.Context, b telemetry.Batch) error {
	if len(b.Rows) == 0 {
		return nil
	}
	t, ok := w.reg.Table(b.Table)
	if !ok {
		return fmt.Errorf("greptimedb: %w: %s", ErrUnknownTable, b.Table)
	}
	tbl, err := table.New(t.Name)
	if err != nil {
		return err
	}
	for _, tag := range t.Tags {
		if err := tbl.AddTagColumn(tag, types.STRING); err != nil {
			return err
		}
	}
	for _, f := range t.Fields {
		if err := tbl.AddFieldColumn(f, types.FLOAT32); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range b.Rows {
		values := make([]any, 0, len(t.Tags)+len(t.Fields)+1)
		for i := range t.Tags {
			values = append(values, r.Tags[i])
		}
		for i := range t.Fields {
			values = append(values, r.Fields[i])
		}
		values = append(values, r.Timestamp)
		if err := tbl.AddRow(values...); err != nil {
			return err
		}
	}
	_, err = w.client.Write(ctx, tbl)
	return err
}
