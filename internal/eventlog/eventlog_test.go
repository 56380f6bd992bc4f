package eventlog

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/registry"
)

type collectWriter struct {
	envs []events.Envelope
	err  error
}

func (c *collectWriter) Write(e events.Envelope) error {
	c.envs = append(c.envs, e)
	return c.err
}

func TestFileWriterReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	ts := time.Unix(0, 0).UTC()
	for i, ev := range []events.Event{
		events.DataIngested("wind", 560),
		events.StoreSize(registry.Primary, []uint64{100, 0, 7}),
		events.Flushing(registry.Comparison, "grpc://127.0.0.1:9881"),
	} {
		env, err := events.Encode(ev, ts.Add(time.Duration(i)*time.Millisecond))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := fw.Write(env); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []events.Event
	err = ReplayFile(context.Background(), path, 0, func(_ events.Envelope, ev events.Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("replayed %d events, want 3", len(got))
	}
	if p := got[0].Payload.(events.IngestedSize); p.Size != 560 {
		t.Fatalf("ingested payload = %+v", p)
	}
	if p := got[1].Payload.(events.RemoteObjectStoreSize); p.TableSizes[2] != 7 {
		t.Fatalf("store payload = %+v", p)
	}
	if got[2].Name != "flushing-comparison-node" || got[2].Payload.(string) != "grpc://127.0.0.1:9881" {
		t.Fatalf("flushing event = %+v", got[2])
	}
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	for i := 0; i < 2; i++ {
		env, _ := events.Encode(events.DataIngested("wind", 1), time.Unix(int64(i), 0))
		if err := w.Write(env); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("stdout writer printed %d lines", n)
	}
	boom := errors.New("boom")
	calls := 0
	err := Replay(context.Background(), &buf, 0, func(events.Envelope, events.Event) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err = %v after %d calls", err, calls)
	}
}

func TestMultiWriterContinuesAfterError(t *testing.T) {
	a := &collectWriter{err: errors.New("disk full")}
	b := &collectWriter{}
	mw := NewMultiWriter(a, b)
	env, _ := events.Encode(events.DataIngested("wind", 1), time.Now())
	if err := mw.Write(env); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(b.envs) != 1 {
		t.Fatalf("second writer skipped")
	}
}

func TestDrain(t *testing.T) {
	bus := events.NewBus(8)
	sub := bus.Subscribe()
	cw := &collectWriter{}
	done := make(chan struct{})
	go func() {
		Drain(context.Background(), sub, cw, nil)
		close(done)
	}()
	bus.Publish(events.DataIngested("wind", 56))
	bus.Publish(events.DataIngested("wind", 112))
	sub.Close()
	<-done
	if len(cw.envs) != 2 || cw.envs[1].Event != events.NameDataIngested {
		t.Fatalf("drained %+v", cw.envs)
	}
}

func TestNewFileWriterBadPath(t *testing.T) {
	if _, err := NewFileWriter(filepath.Join(t.TempDir(), "missing", "x.jsonl")); err == nil {
		t.Fatalf("expected error")
	}
}
