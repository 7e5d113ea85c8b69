package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"romba-go/internal/romba"
)

// OSFilesystemManager implements romba.FilesystemManager on the real
// filesystem.
type OSFilesystemManager struct {
	ignore []string
}

// NewOSFilesystemManager returns a manager whose FindFiles skips files
// matching the configured ignore patterns, the defaults and any
// .rombaignore file at the scan root.
func NewOSFilesystemManager(ignore []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: ignore}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*romba.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return romba.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *romba.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *romba.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

func (m *OSFilesystemManager) matcher(root string) (*IgnoreMatcher, error) {
	local, err := ParseIgnoreFile(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), m.ignore...), local...)
	return NewIgnoreMatcher(patterns), nil
}

// FindFiles discovers regular files under the given directory path.
// Ignored directories are not descended into.
func (m *OSFilesystemManager) FindFiles(path *romba.Path, recursive bool) ([]*romba.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}
	root := path.String()
	ignore, err := m.matcher(root)
	if err != nil {
		return nil, err
	}

	var paths []*romba.Path
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, romba.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

// CreateFile creates absPath for writing, making parent directories as
// needed. An existing file is never truncated.
func (m *OSFilesystemManager) CreateFile(absPath string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	return f, nil
}

func (m *OSFilesystemManager) Remove(absPath string) error {
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

var _ romba.FilesystemManager = (*OSFilesystemManager)(nil)
