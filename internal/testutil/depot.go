package testutil

import (
	"bytes"
	"testing"

	"romba-go/internal/depot"
	"romba-go/internal/romba"
)

// NewTestDepot creates an online depot in a temp directory. maxSize <= 0
// means unbounded.
func NewTestDepot(t *testing.T, maxSize int64) *depot.FileSystemDepot {
	t.Helper()
	d, err := depot.NewFileSystemDepot(t.TempDir(), maxSize, true, romba.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create depot: %v", err)
	}
	return d
}

// NewTestPool wraps depots in a pool, in the given order.
func NewTestPool(depots ...*depot.FileSystemDepot) *depot.Pool {
	ds := make([]romba.Depot, len(depots))
	for i, d := range depots {
		ds[i] = d
	}
	return depot.NewPool(ds, romba.NewNopLogger())
}

// StoreContent stores data in d and returns its SHA-1.
func StoreContent(t *testing.T, d romba.Depot, data []byte) string {
	t.Helper()
	hs := HashesOf(data)
	if _, err := d.Store(bytes.NewReader(data), hs, int64(len(data))); err != nil {
		t.Fatalf("failed to store content: %v", err)
	}
	return hs.SHA1
}
