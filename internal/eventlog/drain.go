package eventlog

import (
	"context"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
)

// Drain writes every event from sub to w until ctx is done or sub is closed.
// Write failures are logged and do not stop the drain.
func Drain(ctx context.Context, sub *events.Subscription, w Writer, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	log := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			env, err := events.Encode(ev, now().UTC())
			if err == nil {
				err = w.Write(env)
			}
			if err != nil {
				log.Warn("event log write failed", "event", ev.Name, "err", err)
			}
		}
	}
}
