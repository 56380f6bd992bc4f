package registry

import "fmt"

// DeploymentType tells which system a node belongs to.
type DeploymentType string

const (
	Primary    DeploymentType = "modelardb"
	Comparison DeploymentType = "comparison"
)

// DeploymentTypes lists every deployment type in display order.
var DeploymentTypes = []DeploymentType{Primary, Comparison}

// ParseDeploymentType accepts the catalog spelling. An empty string means Primary.
func ParseDeploymentType(s string) (DeploymentType, error) {
	switch DeploymentType(s) {
	case "", Primary:
		return Primary, nil
	case Comparison:
		return Comparison, nil
	}
	return "", fmt.Errorf("unknown deployment type %q", s)
}

// ServerMode is the role a node plays.
type ServerMode string

const (
	Edge  ServerMode = "edge"
	Cloud ServerMode = "cloud"
	Local ServerMode = "local"
)

// ParseServerMode accepts the catalog spelling.
func ParseServerMode(s string) (ServerMode, error) {
	switch ServerMode(s) {
	case Edge, Cloud, Local:
		return ServerMode(s), nil
	}
	return "", fmt.Errorf("unknown server mode %q", s)
}

// Position is passed through for display only.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Node is a simulated edge, cloud, or local node.
type Node struct {
	Type     DeploymentType
	URL      string
	Mode     ServerMode
	Bucket   string
	Position Position
}

// StoreKey identifies the remote object store the node writes to. Nodes that
// share a bucket share a store.
func (n Node) StoreKey() string {
	if n.Bucket != "" {
		return n.Bucket
	}
	return n.URL
}

// Participates reports whether the node takes part in ingestion, flush, and
// monitor loops. The local node is query-only.
func (n Node) Participates() bool { return n.Mode != Local }

// String is used in logs.
func (n Node) String() string {
	if n.Mode == Local {
		return "local"
	}
	return fmt.Sprintf("%s/%s(%s)", n.Type, n.Mode, n.URL)
}
