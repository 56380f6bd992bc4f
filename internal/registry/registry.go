package registry

import "slices"

// Registry is the read-only catalog of tables and nodes.
type Registry struct {
	tables []Table
	nodes  []Node
}

// New builds a registry. The slices are copied; callers validate beforehand.
func New(tables []Table, nodes []Node) *Registry {
	return &Registry{tables: slices.Clone(tables), nodes: slices.Clone(nodes)}
}

// Tables returns the tables in catalog order.
func (r *Registry) Tables() []Table { return slices.Clone(r.tables) }

// TableNames returns the table names in catalog order.
func (r *Registry) TableNames() []string {
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}

// Table looks up a table by name.
func (r *Registry) Table(name string) (Table, bool) {
	for _, t := range r.tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableIndex returns the catalog position of a table, or -1.
func (r *Registry) TableIndex(name string) int {
	return slices.IndexFunc(r.tables, func(t Table) bool { return t.Name == name })
}

// Nodes returns the nodes in catalog order.
func (r *Registry) Nodes() []Node { return slices.Clone(r.nodes) }

// Node looks up a node by URL.
func (r *Registry) Node(url string) (Node, bool) {
	for _, n := range r.nodes {
		if n.URL == url {
			return n, true
		}
	}
	return Node{}, false
}

// NodesOfType returns the participating nodes of a deployment type.
func (r *Registry) NodesOfType(t DeploymentType) []Node {
	var out []Node
	for _, n := range r.nodes {
		if n.Participates() && n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// NodesOfMode returns the nodes with the given server mode.
func (r *Registry) NodesOfMode(m ServerMode) []Node {
	var out []Node
	for _, n := range r.nodes {
		if n.Mode == m {
			out = append(out, n)
		}
	}
	return out
}

// EdgeNodes returns the edge nodes of a deployment type.
func (r *Registry) EdgeNodes(t DeploymentType) []Node {
	var out []Node
	for _, n := range r.NodesOfType(t) {
		if n.Mode == Edge {
			out = append(out, n)
		}
	}
	return out
}
