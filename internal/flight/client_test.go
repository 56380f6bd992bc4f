package flight

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"modelardb-sim/internal/registry"
)

// actionServer is a minimal Flight server that only implements DoAction.
type actionServer struct {
	arrowflight.BaseFlightServer

	mu      sync.Mutex
	actions []string
}

func (s *actionServer) DoAction(a *arrowflight.Action, stream arrowflight.FlightService_DoActionServer) error {
	s.mu.Lock()
	s.actions = append(s.actions, a.Type)
	s.mu.Unlock()
	switch a.Type {
	case ActionFlushNode, ActionResetNode:
		return stream.Send(&arrowflight.Result{Body: []byte("ok")})
	}
	return status.Errorf(codes.Unimplemented, "action %q is not implemented", a.Type)
}

func (s *actionServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func startServer(t *testing.T) (*actionServer, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	as := &actionServer{}
	srv := grpc.NewServer()
	arrowflight.RegisterFlightServiceServer(srv, as)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return as, "grpc://" + lis.Addr().String()
}

func TestDoActionReturnsBodies(t *testing.T) {
	_, url := startServer(t)
	c := NewClient(registry.New(nil, nil))
	defer c.Close()
	bodies, err := c.DoAction(context.Background(), url, &arrowflight.Action{Type: ActionFlushNode})
	if err != nil {
		t.Fatalf("DoAction: %v", err)
	}
	if len(bodies) != 1 || string(bodies[0]) != "ok" {
		t.Fatalf("bodies = %q", bodies)
	}
}

func TestFlushAndCreateTables(t *testing.T) {
	as, url := startServer(t)
	reg := registry.New(nil, []registry.Node{
		{Mode: registry.Local},
		{Type: registry.Comparison, URL: url, Mode: registry.Edge},
	})
	c := NewClient(reg)
	defer c.Close()

	node, _ := reg.Node(url)
	if err := c.Flush(context.Background(), node); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := c.CreateTables(context.Background()); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	got := as.seen()
	if len(got) != 2 || got[0] != ActionFlushNode || got[1] != ActionResetNode {
		t.Fatalf("server saw %v", got)
	}
}

func TestUnknownActionError(t *testing.T) {
	_, url := startServer(t)
	c := NewClient(registry.New(nil, nil))
	defer c.Close()
	_, err := c.DoAction(context.Background(), url, &arrowflight.Action{Type: "compact"})
	if err == nil || !strings.Contains(err.Error(), "not implemented") {
		t.Fatalf("expected unimplemented error, got %v", err)
	}
}

func TestClosedClient(t *testing.T) {
	c := NewClient(registry.New(nil, nil))
	c.Close()
	if _, err := c.DoAction(context.Background(), "grpc://127.0.0.1:1", &arrowflight.Action{Type: ActionFlushNode}); err == nil {
		t.Fatalf("expected error from closed client")
	}
}

func TestTarget(t *testing.T) {
	if got := Target("grpc://127.0.0.1:9981"); got != "127.0.0.1:9981" {
		t.Fatalf("Target = %s", got)
	}
}
