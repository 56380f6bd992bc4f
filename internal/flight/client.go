// Package flight triggers storage actions on remote nodes through the Arrow
// Flight DoAction RPC.
package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"modelardb-sim/internal/registry"
)

// Action types understood by the node servers.
const (
	ActionFlushNode = "flush_node"
	ActionResetNode = "reset_node"
)

var errNoConn = errors.New("flight: client closed")

// Client holds one connection per node URL, opened lazily.
type Client struct {
	reg *registry.Registry

	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	clients map[string]arrowflight.FlightServiceClient
	closed  bool
}

// NewClient creates a client for the nodes in reg.
func NewClient(reg *registry.Registry) *Client {
	return &Client{
		reg:     reg,
		conns:   map[string]*grpc.ClientConn{},
		clients: map[string]arrowflight.FlightServiceClient{},
	}
}

// Target converts a node URL to a grpc dial target.
func Target(url string) string {
	return strings.TrimPrefix(url, "grpc://")
}

func (c *Client) service(url string) (arrowflight.FlightServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errNoConn
	}
	if fc, ok := c.clients[url]; ok {
		return fc, nil
	}
	cc, err := grpc.NewClient(Target(url), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("flight: connect %s: %w", url, err)
	}
	fc := arrowflight.NewFlightServiceClient(cc)
	c.conns[url] = cc
	c.clients[url] = fc
	return fc, nil
}

// DoAction runs an action on a node and returns the result bodies.
func (c *Client) DoAction(ctx context.Context, url string, a *arrowflight.Action) ([][]byte, error) {
	fc, err := c.service(url)
	if err != nil {
		return nil, err
	}
	stream, err := fc.DoAction(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("flight %s %s: %w", url, a.Type, err)
	}
	var results [][]byte
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return nil, fmt.Errorf("flight %s %s: %w", url, a.Type, err)
		}
		results = append(results, res.Body)
	}
}

// Flush asks an edge node to upload its buffered data.
func (c *Client) Flush(ctx context.Context, n registry.Node) error {
	_, err := c.DoAction(ctx, n.URL, &arrowflight.Action{Type: ActionFlushNode})
	return err
}

// CreateTables resets the storage of every participating node.
func (c *Client) CreateTables(ctx context.Context) error {
	var errs []error
	for _, n := range c.reg.Nodes() {
		if !n.Participates() {
			continue
		}
		if _, err := c.DoAction(ctx, n.URL, &arrowflight.Action{Type: ActionResetNode}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var errs []error
	for url, cc := range c.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, url)
		delete(c.clients, url)
	}
	return errors.Join(errs...)
}
