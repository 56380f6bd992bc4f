package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
)

// NameSnapshot is sent once when a client attaches, so it can start from the
// current state instead of replaying missed events.
const NameSnapshot = "snapshot"

const writeWait = 5 * time.Second

// handleEvents streams bus events to a websocket client as envelopes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sub := s.Sim.Bus().Subscribe()
	defer sub.Close()

	snap, err := json.Marshal(s.Sim.Snapshot())
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(events.Envelope{Timestamp: time.Now().UTC(), Event: NameSnapshot, Payload: snap}); err != nil {
		return
	}

	// the reader only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("websocket read failed", "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			env, err := events.Encode(ev, time.Now().UTC())
			if err != nil {
				log.Warn("event encode failed", "event", ev.Name, "err", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				log.Warn("websocket write failed", "err", err)
				return
			}
		}
	}
}
