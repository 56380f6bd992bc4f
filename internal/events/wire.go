package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope is the wire form of an event.
type Envelope struct {
	Timestamp time.Time       `json:"ts,omitempty"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode wraps ev in an envelope stamped with ts.
func Encode(ev Event, ts time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	return Envelope{Timestamp: ts, Event: ev.Name, Payload: payload}, nil
}

// Decode turns an envelope back into an event with a typed payload. Unknown
// event names keep their raw payload.
func (e Envelope) Decode() (Event, error) {
	ev := Event{Name: e.Event}
	var err error
	switch {
	case e.Event == NameDataIngested:
		var p IngestedSize
		err = json.Unmarshal(e.Payload, &p)
		ev.Payload = p
	case e.Event == NameRemoteObjectStoreSize:
		var p RemoteObjectStoreSize
		err = json.Unmarshal(e.Payload, &p)
		ev.Payload = p
	case e.Event == NameNodeUnreachable:
		var p NodeUnreachable
		err = json.Unmarshal(e.Payload, &p)
		ev.Payload = p
	case strings.HasPrefix(e.Event, "flushing-"):
		var p string
		err = json.Unmarshal(e.Payload, &p)
		ev.Payload = p
	default:
		ev.Payload = e.Payload
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return ev, nil
}
