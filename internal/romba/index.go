package romba

import (
	"context"
	"time"

	"romba-go/internal/model"
)

// Index is the hash index. It records which hashes belong together, where
// content is stored, and which DAT files have been imported.
//
// Every write is insert-or-ignore: recording a fact twice is not an error and
// never overwrites an existing row. Batches are applied atomically.
type Index interface {
	// RecordContent records a single hash tuple. Blank algorithms are skipped.
	RecordContent(ctx context.Context, hashes model.HashSet, depot string) error

	// RecordContents records a batch of hash tuples in one transaction.
	RecordContents(ctx context.Context, entries []model.IndexEntry) error

	// LookupByAny reports whether any supplied hash is already known through
	// the crc_sha1, md5_sha1 or sha1 tables. Blank arguments are ignored.
	LookupByAny(ctx context.Context, crc, md5, sha1 string) (bool, error)

	// ResolveSHA1s returns the SHA-1s reachable from the populated CRC32, MD5
	// and SHA-1 fields of hashes, sorted.
	ResolveSHA1s(ctx context.Context, hashes model.HashSet) ([]string, error)

	// FindDepot returns the depot recorded for sha1. ok is false when the
	// content has no recorded location.
	FindDepot(ctx context.Context, sha1 string) (depot string, ok bool, err error)

	// ListDepotSHA1s returns the SHA-1s located in depot that start with
	// prefix, sorted.
	ListDepotSHA1s(ctx context.Context, depot, prefix string) ([]string, error)

	// RemoveDepotEntries clears the depot location of the given SHA-1s. The
	// hash relations themselves are kept.
	RemoveDepotEntries(ctx context.Context, depot string, sha1s []string) error

	RegisterDat(ctx context.Context, sha1 string) error
	UnregisterDats(ctx context.Context, sha1s []string) error
	IsDatRegistered(ctx context.Context, sha1 string) (bool, error)
	DistinctRegisteredDats(ctx context.Context) (map[string]struct{}, error)

	// RescanCheckpoint returns the last completed top-level shard of an
	// interrupted rescan of depot, or "" when there is none.
	RescanCheckpoint(ctx context.Context, depot string) (string, error)
	SetRescanCheckpoint(ctx context.Context, depot, shard string) error
	ClearRescanCheckpoint(ctx context.Context, depot string) error

	Stats(ctx context.Context) (*IndexStats, error)

	CreateOperation(ctx context.Context, op *Operation) error
	FinishOperation(ctx context.Context, id, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*Operation, error)

	// BackupTo writes a consistent copy of the index to path.
	BackupTo(ctx context.Context, path string) error

	Close() error
}

// IndexStats holds row counts of the index tables.
type IndexStats struct {
	CRC      int64
	MD5      int64
	SHA1     int64
	CRCSHA1  int64
	MD5SHA1  int64
	Dats     int64
	InDepots int64
}

// Operation is a persisted record of a mutating command.
type Operation struct {
	ID         string
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

const (
	OperationRunning = "running"
	OperationSuccess = "success"
	OperationFailed  = "failed"
)
