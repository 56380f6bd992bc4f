package storage

import (
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Bucket is an in-memory object store shared by every node naming it.
type Bucket struct {
	Name string

	mu      sync.RWMutex
	objects map[string][]byte
	seq     uint64
}

// NewBucket creates an empty bucket.
func NewBucket(name string) *Bucket {
	return &Bucket{Name: name, objects: map[string][]byte{}}
}

// SegmentKey names the seq-th segment of a table. The blake3 digest of the
// content follows the sequence number, so equal segments from two flushes get
// distinct keys.
func SegmentKey(table string, seq uint64, data []byte) string {
	sum := blake3.Sum256(data)
	return path.Join("tables", table, fmt.Sprintf("%020d-%s.seg", seq, hex.EncodeToString(sum[:])))
}

// AddSegment stores data as the next segment of table and returns its key.
func (b *Bucket) AddSegment(table string, data []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	key := SegmentKey(table, b.seq, data)
	b.objects[key] = data
	return key
}

// Put stores an object. Re-putting a key replaces it.
func (b *Bucket) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
}

// Get returns an object.
func (b *Bucket) Get(key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("bucket %s: no object %q", b.Name, key)
	}
	return data, nil
}

// List returns the keys under prefix in lexical order.
func (b *Bucket) List(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Size sums the object sizes under prefix.
func (b *Bucket) Size(prefix string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n uint64
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			n += uint64(len(v))
		}
	}
	return n
}

// Clear drops every object.
func (b *Bucket) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects = map[string][]byte{}
}

// TablePrefix is the key prefix of a table's segments.
func TablePrefix(table string) string {
	return "tables/" + table + "/"
}
