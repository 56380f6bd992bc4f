package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"modelardb-sim/internal/registry"
)

// Event names.
const (
	NameDataIngested          = "data-ingested"
	NameRemoteObjectStoreSize = "remote-object-store-size"
	NameFlushingPrimary       = "flushing-modelardb-node"
	NameFlushingComparison    = "flushing-comparison-node"
	NameNodeUnreachable       = "node-unreachable"
)

// IngestedSize is the payload of data-ingested.
type IngestedSize struct {
	TableName string `json:"table_name"`
	Size      uint64 `json:"size"`
}

// RemoteObjectStoreSize is the payload of remote-object-store-size. Sizes are
// cumulative and positional: TableSizes[i] belongs to the i-th catalog table
// and is encoded as table_<i+1>_size.
type RemoteObjectStoreSize struct {
	NodeType   string
	TableSizes []uint64
}

// Total sums the per-table sizes.
func (r RemoteObjectStoreSize) Total() uint64 {
	var sum uint64
	for _, s := range r.TableSizes {
		sum += s
	}
	return sum
}

// MarshalJSON writes node_type followed by table_1_size..table_N_size.
func (r RemoteObjectStoreSize) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"node_type":`)
	nt, err := json.Marshal(r.NodeType)
	if err != nil {
		return nil, err
	}
	buf.Write(nt)
	for i, s := range r.TableSizes {
		fmt.Fprintf(&buf, `,"table_%d_size":%d`, i+1, s)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts any number of table_<i>_size fields.
func (r *RemoteObjectStoreSize) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.NodeType = ""
	if nt, ok := raw["node_type"]; ok {
		if err := json.Unmarshal(nt, &r.NodeType); err != nil {
			return fmt.Errorf("node_type: %w", err)
		}
	}
	sizes := map[int]uint64{}
	maxIdx := 0
	for k, v := range raw {
		if !strings.HasPrefix(k, "table_") || !strings.HasSuffix(k, "_size") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(k, "table_"), "_size"))
		if err != nil || idx < 1 {
			return fmt.Errorf("bad size field %q", k)
		}
		// indices must fit inside the fields present
		if idx > len(raw) {
			return fmt.Errorf("size field %q out of range", k)
		}
		var n uint64
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		sizes[idx] = n
		maxIdx = max(maxIdx, idx)
	}
	r.TableSizes = make([]uint64, maxIdx)
	for idx, n := range sizes {
		r.TableSizes[idx-1] = n
	}
	return nil
}

// NodeUnreachable is the payload of node-unreachable.
type NodeUnreachable struct {
	NodeType string `json:"node_type"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// DataIngested builds a data-ingested event.
func DataIngested(table string, size uint64) Event {
	return Event{Name: NameDataIngested, Payload: IngestedSize{TableName: table, Size: size}}
}

// StoreSize builds a remote-object-store-size event.
func StoreSize(t registry.DeploymentType, sizes []uint64) Event {
	return Event{Name: NameRemoteObjectStoreSize, Payload: RemoteObjectStoreSize{NodeType: string(t), TableSizes: sizes}}
}

// Flushing builds the flushing event for a deployment type. An empty url means
// no node of that type is flushing.
func Flushing(t registry.DeploymentType, url string) Event {
	return Event{Name: FlushingName(t), Payload: url}
}

// FlushingName returns the flushing event name for a deployment type.
func FlushingName(t registry.DeploymentType) string {
	return "flushing-" + string(t) + "-node"
}

// Unreachable builds a node-unreachable warning.
func Unreachable(n registry.Node, err error) Event {
	return Event{Name: NameNodeUnreachable, Payload: NodeUnreachable{NodeType: string(n.Type), URL: n.URL, Error: err.Error()}}
}
