package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"modelardb-sim/internal/events"
)

// Replay feeds logged events from r to fn. A speed > 0 reproduces the recorded
// spacing divided by speed; speed <= 0 replays without delay.
func Replay(ctx context.Context, r io.Reader, speed float64, fn func(events.Envelope, events.Event) error) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var env events.Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(env.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(diff):
				}
			}
		}
		ev, err := env.Decode()
		if err != nil {
			return err
		}
		if err := fn(env, ev); err != nil {
			return err
		}
		prev = env.Timestamp
	}
}

// ReplayFile opens a file and replays its events.
func ReplayFile(ctx context.Context, path string, speed float64, fn func(events.Envelope, events.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Replay(ctx, f, speed, fn)
}
