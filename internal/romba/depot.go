package romba

import (
	"context"
	"io"

	"romba-go/internal/model"
)

// ObjectInfo is the metadata carried in a depot object's gzip header.
type ObjectInfo struct {
	SHA1  string
	MD5   string
	CRC32 string
	Size  int64
}

// Depot is a content-addressed store of gzip objects named by SHA-1.
type Depot interface {
	// Root is the depot directory. It is the location recorded in the index.
	Root() string
	Online() bool

	// Full reports whether the depot has reached its size limit.
	Full() bool

	// Size is the total number of stored content bytes.
	Size() int64

	Has(sha1 string) (bool, error)

	// Store writes content under its SHA-1. hashes must carry at least SHA1,
	// MD5 and CRC32 of the content. stored is false when the object already
	// existed. Returns ErrDepotFull when the depot is at capacity.
	Store(content io.Reader, hashes model.HashSet, size int64) (stored bool, err error)

	// Open returns the decompressed content of sha1. The reader returns
	// ErrCorruptObject from Read or Close when the content disagrees with
	// the header. Returns ErrNotFound when the object does not exist.
	Open(sha1 string) (io.ReadCloser, *ObjectInfo, error)

	// Rehash decompresses the object stored under sha1 and hashes it. It
	// returns ErrCorruptObject when the header, the content and the name do
	// not agree.
	Rehash(sha1 string) (model.HashSet, error)

	// WalkShard calls fn for every object under the top-level shard, in
	// lexical order.
	WalkShard(ctx context.Context, shard string, fn func(sha1 string) error) error

	// Measure recomputes the stored size from disk and persists it.
	Measure(ctx context.Context) (int64, error)
}

// DepotPool is an ordered set of depots with a write selection policy.
type DepotPool interface {
	Depots() []Depot

	// Store writes content to the first online depot that is not full.
	// Depots that report ErrDepotFull are skipped for the rest of the run.
	Store(content io.Reader, hashes model.HashSet, size int64) (Depot, bool, error)

	// Find returns the first online depot holding sha1, or ErrNotFound.
	Find(sha1 string) (Depot, error)
}
