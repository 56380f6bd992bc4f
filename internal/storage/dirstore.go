package storage

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"modelardb-sim/internal/registry"
)

// DirStore samples object stores mounted as directories, laid out as
// <root>/<bucket>/tables/<table>/... . It is the sampler for real clusters
// whose buckets are synced or mounted locally.
type DirStore struct {
	Root   string
	Tables []string
}

// StoreDir is the directory name of a node's store under the root. Nodes
// without a bucket use their URL with every character outside [A-Za-z0-9._-]
// replaced by '_', so grpc://127.0.0.1:9981 becomes grpc___127.0.0.1_9981.
func StoreDir(n registry.Node) string {
	if n.Bucket != "" {
		return n.Bucket
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, n.URL)
}

// TableSizes sums file sizes under each table directory of the node's bucket.
// Missing directories count as empty.
func (d DirStore) TableSizes(ctx context.Context, n registry.Node) ([]uint64, error) {
	sizes := make([]uint64, len(d.Tables))
	for i, table := range d.Tables {
		dir := filepath.Join(d.Root, StoreDir(n), "tables", table)
		err := filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry.Type().IsRegular() {
				info, err := entry.Info()
				if err != nil {
					return err
				}
				sizes[i] += uint64(info.Size())
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return sizes, nil
}
