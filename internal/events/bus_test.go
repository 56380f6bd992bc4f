package events

import (
	"encoding/json"
	"testing"
	"time"

	"modelardb-sim/internal/registry"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus(8)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(DataIngested("wind", 10))
	bus.Publish(DataIngested("wind", 20))

	for _, s := range []*Subscription{a, b} {
		first := <-s.C
		second := <-s.C
		if first.Payload.(IngestedSize).Size != 10 || second.Payload.(IngestedSize).Size != 20 {
			t.Fatalf("events out of order: %+v %+v", first, second)
		}
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	bus := NewBus(8)
	bus.Publish(DataIngested("wind", 1))
	s := bus.Subscribe()
	defer s.Close()
	select {
	case ev := <-s.C:
		t.Fatalf("late subscriber received %+v", ev)
	default:
	}
}

func TestFullQueueDrops(t *testing.T) {
	bus := NewBus(1)
	drops := 0
	bus.OnDrop = func(Event) { drops++ }
	s := bus.Subscribe()
	defer s.Close()
	bus.Publish(DataIngested("wind", 1))
	bus.Publish(DataIngested("wind", 2))
	if s.Dropped() != 1 || drops != 1 {
		t.Fatalf("expected one drop, got %d (hook %d)", s.Dropped(), drops)
	}
	if ev := <-s.C; ev.Payload.(IngestedSize).Size != 1 {
		t.Fatalf("expected the first event to survive, got %+v", ev)
	}
}

func TestCloseDetaches(t *testing.T) {
	bus := NewBus(1)
	s := bus.Subscribe()
	s.Close()
	s.Close()
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
	if _, ok := <-s.C; ok {
		t.Fatalf("expected closed channel")
	}
	bus.Publish(DataIngested("wind", 1))
}

func TestStoreSizeJSON(t *testing.T) {
	ev := StoreSize(registry.Primary, []uint64{250, 0, 7})
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"node_type":"modelardb","table_1_size":250,"table_2_size":0,"table_3_size":7}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
	var back RemoteObjectStoreSize
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.NodeType != "modelardb" || len(back.TableSizes) != 3 || back.TableSizes[0] != 250 || back.Total() != 257 {
		t.Fatalf("unexpected decode: %+v", back)
	}
}

func TestEnvelopeDecode(t *testing.T) {
	ts := time.Unix(10, 0).UTC()
	for _, ev := range []Event{
		DataIngested("wind_5", 11200),
		Flushing(registry.Comparison, "grpc://127.0.0.1:9881"),
		StoreSize(registry.Comparison, []uint64{1, 2}),
	} {
		env, err := Encode(ev, ts)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		raw, _ := json.Marshal(env)
		var got Envelope
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		back, err := got.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if back.Name != ev.Name {
			t.Errorf("name = %s, want %s", back.Name, ev.Name)
		}
	}
	if FlushingName(registry.Primary) != NameFlushingPrimary || FlushingName(registry.Comparison) != NameFlushingComparison {
		t.Errorf("flushing names do not match the wire contract")
	}
}

func TestStoreSizeRejectsOutOfRangeIndex(t *testing.T) {
	for _, payload := range []string{
		`{"node_type":"modelardb","table_1000000000000000000_size":1}`,
		`{"node_type":"modelardb","table_300000000_size":1}`,
		`{"table_1_size":1,"table_3_size":2}`,
	} {
		env := Envelope{Event: NameRemoteObjectStoreSize, Payload: json.RawMessage(payload)}
		if _, err := env.Decode(); err == nil {
			t.Errorf("expected error for %s", payload)
		}
	}
	var ok RemoteObjectStoreSize
	if err := json.Unmarshal([]byte(`{"table_2_size":5,"table_1_size":4}`), &ok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ok.TableSizes) != 2 || ok.TableSizes[1] != 5 {
		t.Fatalf("unexpected decode: %+v", ok)
	}
}
