package depot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
	"romba-go/internal/romba"
)

const (
	sizeFile       = ".romba_size"
	sizeBackupFile = ".romba_size.backup"
)

// FileSystemDepot is a depot rooted at a local directory:
//
//	<root>/
//	  .romba_size          (total stored bytes, decimal)
//	  .romba_size.backup   (previous value)
//	  xx/yy/zz/ww/<sha1>.gz
type FileSystemDepot struct {
	root    string
	maxSize int64
	online  bool
	logger  romba.Logger

	mu   sync.Mutex
	size int64
}

// NewFileSystemDepot opens the depot at root. An online depot whose
// directory has no size file is initialised empty. maxSize <= 0 means
// unbounded. Offline depots are never touched.
func NewFileSystemDepot(root string, maxSize int64, online bool, logger romba.Logger) (*FileSystemDepot, error) {
	d := &FileSystemDepot{root: root, maxSize: maxSize, online: online, logger: logger}
	if !online {
		return d, nil
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating depot root: %w", err)
	}

	size, err := d.readSize()
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("initialising depot", "root", root)
		if err := d.writeSize(0); err != nil {
			return nil, err
		}
		return d, nil
	}
	if err != nil {
		return nil, err
	}
	d.size = size
	return d, nil
}

func (d *FileSystemDepot) Root() string { return d.root }

func (d *FileSystemDepot) Online() bool { return d.online }

func (d *FileSystemDepot) Full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fullLocked()
}

func (d *FileSystemDepot) fullLocked() bool {
	return d.maxSize > 0 && d.size >= d.maxSize
}

func (d *FileSystemDepot) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *FileSystemDepot) objectPath(sha1 string) (string, error) {
	rel := ShardPath(sha1)
	if rel == "" {
		return "", fmt.Errorf("sha1 %q: %w", sha1, romba.ErrInvalidHash)
	}
	return filepath.Join(d.root, rel), nil
}

func (d *FileSystemDepot) Has(sha1 string) (bool, error) {
	path, err := d.objectPath(sha1)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Store writes content under hashes.SHA1. Existing objects are left alone.
// The content is hashed while it is compressed and the object is discarded
// if it does not match the claimed SHA-1, MD5, CRC32 or size.
func (d *FileSystemDepot) Store(content io.Reader, hashes model.HashSet, size int64) (bool, error) {
	hashes = hashes.Normalize()
	path, err := d.objectPath(hashes.SHA1)
	if err != nil {
		return false, err
	}
	if !d.online {
		return false, fmt.Errorf("depot %s is offline", d.root)
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if d.Full() {
		return false, fmt.Errorf("depot %s: %w", d.root, romba.ErrDepotFull)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("creating shard directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	info := romba.ObjectInfo{SHA1: hashes.SHA1, MD5: hashes.MD5, CRC32: hashes.CRC32, Size: size}
	got, n, err := writeObject(tmpFile, content, info)
	if err != nil {
		tmpFile.Close()
		return false, err
	}
	if err := tmpFile.Close(); err != nil {
		return false, fmt.Errorf("closing temp file: %w", err)
	}
	if err := verify(hashes.SHA1, &info, got, n); err != nil {
		return false, fmt.Errorf("content does not match its hashes: %w", err)
	}

	st, err := os.Stat(tmpPath)
	if err != nil {
		return false, fmt.Errorf("stat temp file: %w", err)
	}
	// Link fails if another writer stored the same content meanwhile, so
	// only one writer ever counts the object.
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("linking object: %w", err)
	}

	if err := d.addSize(st.Size()); err != nil {
		return true, err
	}
	d.logger.Debug("object stored", "sha1", hashes.SHA1, "depot", d.root)
	return true, nil
}

func (d *FileSystemDepot) Open(sha1 string) (io.ReadCloser, *romba.ObjectInfo, error) {
	sha1 = strings.ToLower(sha1)
	path, err := d.objectPath(sha1)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", sha1, romba.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("opening object: %w", err)
	}
	zr, info, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", sha1, err)
	}
	info.SHA1 = sha1
	return &verifyingReader{sha1: sha1, info: info, zr: zr, f: f, h: ingest.NewHasher()}, info, nil
}

func (d *FileSystemDepot) Rehash(sha1 string) (model.HashSet, error) {
	r, _, err := d.Open(sha1)
	if err != nil {
		return model.HashSet{}, err
	}
	defer r.Close()

	got, _, err := ingest.Sum(r)
	if err != nil {
		return model.HashSet{}, err
	}
	got.Status = model.StatusVerified
	return got, nil
}

// WalkShard visits the objects below <root>/<shard>. Temp files and files
// whose path does not match their name are skipped.
func (d *FileSystemDepot) WalkShard(ctx context.Context, shard string, fn func(sha1 string) error) error {
	if !model.IsHex(shard, 2) {
		return fmt.Errorf("shard %q: %w", shard, romba.ErrInvalidHash)
	}
	base := filepath.Join(d.root, strings.ToLower(shard))
	err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		sha1, ok := sha1FromName(entry.Name())
		if !ok {
			return nil
		}
		if filepath.Join(d.root, ShardPath(sha1)) != p {
			d.logger.Warn("object outside its shard", "path", p)
			return nil
		}
		return fn(sha1)
	})
	if err != nil {
		return fmt.Errorf("walking shard %s: %w", shard, err)
	}
	return nil
}

// Measure sums the sizes of all objects and persists the total.
func (d *FileSystemDepot) Measure(ctx context.Context) (int64, error) {
	var total int64
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := sha1FromName(entry.Name()); !ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring depot %s: %w", d.root, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.size = total
	if err := d.writeSize(total); err != nil {
		return total, err
	}
	return total, nil
}

func (d *FileSystemDepot) addSize(n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.size += n
	return d.writeSize(d.size)
}

func (d *FileSystemDepot) readSize() (int64, error) {
	data, err := os.ReadFile(filepath.Join(d.root, sizeFile))
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", sizeFile, err)
	}
	return size, nil
}

// writeSize copies the current size file to the backup and then replaces
// it atomically. Caller holds d.mu or owns d exclusively.
func (d *FileSystemDepot) writeSize(size int64) error {
	current := filepath.Join(d.root, sizeFile)
	prev, err := os.ReadFile(current)
	if errors.Is(err, fs.ErrNotExist) {
		prev = []byte(strconv.FormatInt(size, 10))
	} else if err != nil {
		return fmt.Errorf("reading %s: %w", sizeFile, err)
	}
	if err := writeFileAtomic(filepath.Join(d.root, sizeBackupFile), prev); err != nil {
		return err
	}
	return writeFileAtomic(current, []byte(strconv.FormatInt(size, 10)))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

var _ romba.Depot = (*FileSystemDepot)(nil)
