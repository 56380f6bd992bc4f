package tui

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
)

// envelopeReader is the part of websocket.Conn the stream needs.
type envelopeReader interface {
	ReadJSON(v any) error
}

// EventsURL turns an admin base URL such as http://localhost:8080 into the
// websocket URL of its event stream.
func EventsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String(), nil
}

// Dial opens the event stream of the admin server at base.
func Dial(ctx context.Context, base string) (*websocket.Conn, error) {
	wsURL, err := EventsURL(base)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return conn, nil
}

// forward pushes envelopes into the program until the stream ends.
func forward(r envelopeReader, p teaProgram) error {
	p.Send(connMsg{connected: true})
	for {
		var env events.Envelope
		if err := r.ReadJSON(&env); err != nil {
			p.Send(connMsg{err: err})
			return err
		}
		p.Send(envelopeMsg{env})
	}
}

// Print writes one line per envelope until the stream ends.
func Print(r envelopeReader, out io.Writer) error {
	for {
		var env events.Envelope
		if err := r.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if _, err := fmt.Fprintln(out, FormatLine(env)); err != nil {
			return err
		}
	}
}

// Watch attaches to the admin server at base. On a terminal it runs the
// interactive view, otherwise it prints plain lines to stdout.
func Watch(ctx context.Context, base string, window time.Duration) error {
	conn, err := Dial(ctx, base)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		logging.FromContext(ctx).Debug("stdout is not a terminal, printing plain events")
		err := Print(conn, os.Stdout)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	p := tea.NewProgram(newModel(window), tea.WithAltScreen(), tea.WithContext(ctx))
	go forward(conn, p)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
