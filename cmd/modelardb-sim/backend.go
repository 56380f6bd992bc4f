package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"modelardb-sim/internal/admin"
	"modelardb-sim/internal/eventlog"
	"modelardb-sim/internal/flight"
	"modelardb-sim/internal/query"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/sim"
	"modelardb-sim/internal/storage"
)

// Backend kinds selectable with --backend.
const (
	backendSim    = "sim"
	backendFlight = "flight"
)

type backendOptions struct {
	Kind      string
	StoreDir  string
	Bandwidth float64
}

// wiring is everything serve needs from the chosen backend.
type wiring struct {
	Backend sim.Backend
	Faults  admin.FaultInjector
	Query   query.Router
	cleanup func()
}

// newBackend sets up the storage backend and query routing based on flags and
// env vars. It returns a cleanup function to close any resources.
func newBackend(reg *registry.Registry, opts backendOptions) (wiring, error) {
	w := wiring{cleanup: func() {}}
	w.Query.Remote = query.Greptime{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Database: os.Getenv("GREPTIMEDB_DATABASE"),
	}

	mirror, err := greptimeMirror(reg)
	if err != nil {
		return wiring{}, err
	}

	switch opts.Kind {
	case "", backendSim:
		fleet := storage.NewFleet(reg, storage.Options{Bandwidth: opts.Bandwidth})
		w.Backend = sim.Backend{Sink: fleet, Flusher: fleet, Sampler: fleet, Tables: fleet}
		w.Faults = fleet
		w.Query.Local = query.Memory{Registry: reg, Rows: fleet}
		w.Query.Serves = fleet.Serves
	case backendFlight:
		if opts.StoreDir == "" {
			return wiring{}, fmt.Errorf("--backend=%s requires --store-dir", backendFlight)
		}
		if mirror == nil {
			return wiring{}, fmt.Errorf("--backend=%s requires GREPTIMEDB_ENDPOINT for ingestion", backendFlight)
		}
		client := flight.NewClient(reg)
		w.Backend = sim.Backend{
			Sink:    mirror,
			Flusher: client,
			Sampler: storage.DirStore{Root: opts.StoreDir, Tables: reg.TableNames()},
			Tables:  client,
		}
		w.Query.LocalURL = os.Getenv("GREPTIMEDB_HTTP")
		w.cleanup = func() { client.Close() }
		return w, nil
	default:
		return wiring{}, fmt.Errorf("unknown backend %q", opts.Kind)
	}

	if mirror != nil {
		w.Backend.Mirrors = []sim.Sink{mirror}
	}
	return w, nil
}

// greptimeMirror connects to GREPTIMEDB_ENDPOINT when it is set.
func greptimeMirror(reg *registry.Registry) (*sim.GreptimeDBWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	return sim.NewGreptimeDBWriter(endpoint, database, reg)
}

// newEventWriter chooses where published events are logged. It returns nil
// when events are neither printed nor written to a file.
func newEventWriter(printOnly bool, logFile string) (eventlog.Writer, func(), error) {
	cleanup := func() {}
	var ws []eventlog.Writer
	if printOnly {
		ws = append(ws, eventlog.NewJSONStdoutWriter())
	}
	if logFile != "" {
		fw, err := eventlog.NewFileWriter(logFile)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, fw)
		cleanup = func() { fw.Close() }
	}
	switch len(ws) {
	case 0:
		return nil, cleanup, nil
	case 1:
		return ws[0], cleanup, nil
	}
	return eventlog.NewMultiWriter(ws...), cleanup, nil
}
