package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modelardb-sim/internal/eventlog"
	"modelardb-sim/internal/events"
	"modelardb-sim/internal/ratio"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/sim"
	"modelardb-sim/internal/storage"
)

func defaultRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := loadRegistry("")
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	return reg
}

func TestNewBackendSim(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, err := newBackend(defaultRegistry(t), backendOptions{Kind: backendSim})
	if err != nil {
		t.Fatalf("newBackend returned error: %v", err)
	}
	defer w.cleanup()
	if _, ok := w.Backend.Sink.(*storage.Fleet); !ok {
		t.Fatalf("expected *storage.Fleet sink, got %T", w.Backend.Sink)
	}
	if w.Faults == nil || w.Query.Local == nil || w.Query.Serves == nil {
		t.Fatalf("simulated backend must provide faults and local queries")
	}
	if len(w.Backend.Mirrors) != 0 {
		t.Fatalf("expected no mirrors without GREPTIMEDB_ENDPOINT")
	}
}

func TestNewBackendGreptimeMirror(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "127.0.0.1:4001")
	w, err := newBackend(defaultRegistry(t), backendOptions{})
	if err != nil {
		t.Fatalf("newBackend returned error: %v", err)
	}
	defer w.cleanup()
	if len(w.Backend.Mirrors) != 1 {
		t.Fatalf("expected one mirror, got %d", len(w.Backend.Mirrors))
	}
	if _, ok := w.Backend.Mirrors[0].(*sim.GreptimeDBWriter); !ok {
		t.Fatalf("expected *sim.GreptimeDBWriter mirror, got %T", w.Backend.Mirrors[0])
	}
}

func TestNewBackendFlight(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	if _, err := newBackend(defaultRegistry(t), backendOptions{Kind: backendFlight}); err == nil {
		t.Fatalf("expected error without --store-dir")
	}
	if _, err := newBackend(defaultRegistry(t), backendOptions{Kind: backendFlight, StoreDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error without GREPTIMEDB_ENDPOINT")
	}

	t.Setenv("GREPTIMEDB_ENDPOINT", "127.0.0.1:4001")
	t.Setenv("GREPTIMEDB_HTTP", "http://127.0.0.1:4000")
	w, err := newBackend(defaultRegistry(t), backendOptions{Kind: backendFlight, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("newBackend returned error: %v", err)
	}
	defer w.cleanup()
	if _, ok := w.Backend.Sampler.(storage.DirStore); !ok {
		t.Fatalf("expected storage.DirStore sampler, got %T", w.Backend.Sampler)
	}
	if w.Faults != nil {
		t.Fatalf("flight backend has no fault injection")
	}
	if w.Query.LocalURL != "http://127.0.0.1:4000" {
		t.Fatalf("local url = %q", w.Query.LocalURL)
	}
}

func TestNewBackendUnknown(t *testing.T) {
	if _, err := newBackend(defaultRegistry(t), backendOptions{Kind: "s3"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNewEventWriter(t *testing.T) {
	w, cleanup, err := newEventWriter(false, "")
	if err != nil {
		t.Fatalf("newEventWriter returned error: %v", err)
	}
	cleanup()
	if w != nil {
		t.Fatalf("expected no writer, got %T", w)
	}

	w, cleanup, err = newEventWriter(true, "")
	if err != nil {
		t.Fatalf("newEventWriter returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*eventlog.JSONStdoutWriter); !ok {
		t.Fatalf("expected *eventlog.JSONStdoutWriter, got %T", w)
	}

	path := filepath.Join(t.TempDir(), "events.log")
	w, cleanup, err = newEventWriter(true, path)
	if err != nil {
		t.Fatalf("newEventWriter returned error: %v", err)
	}
	defer cleanup()
	if _, ok := w.(*eventlog.MultiWriter); !ok {
		t.Fatalf("expected *eventlog.MultiWriter, got %T", w)
	}
}

func TestReplaySummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	fw, err := eventlog.NewFileWriter(path)
	if err != nil {
		t.Fatalf("file writer: %v", err)
	}
	for i, ev := range []events.Event{
		events.DataIngested("wind", 5600),
		events.StoreSize(registry.Primary, []uint64{560, 0, 0}),
	} {
		env, err := events.Encode(ev, time.Unix(int64(i), 0).UTC())
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := fw.Write(env); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	fw.Close()

	reg := defaultRegistry(t)
	tracker := ratio.NewTracker(reg.TableNames(), 0)
	err = eventlog.ReplayFile(context.Background(), path, 0, func(env events.Envelope, ev events.Event) error {
		tracker.Observe(ev, env.Timestamp)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	var buf bytes.Buffer
	if err := printSummaries(&buf, tracker); err != nil {
		t.Fatalf("summary: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")
	if !strings.HasPrefix(lines[1], "modelardb") || !strings.HasSuffix(lines[1], "10.00") {
		t.Fatalf("unexpected primary summary %q", lines[1])
	}
}

func TestValidateDefaultCatalog(t *testing.T) {
	var buf bytes.Buffer
	validateCmd.SetOut(&buf)
	validateCmd.SetContext(context.Background())
	validateCatalog = ""
	if err := validateCmd.RunE(validateCmd, nil); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(buf.String(), "bytes_per_row=56") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	if _, err := loadRegistry(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing catalog")
	}
}
