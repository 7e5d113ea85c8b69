package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"romba-go/internal/romba"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing. Parent
// directories are created implicitly. Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file and its parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{Content: content, Permissions: 0o644, ModTime: time.Now()}
}

// AddDirectory adds a directory and its parents.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{Permissions: 0o755, ModTime: time.Now(), IsDirectory: true}
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return
		}
		m.files[dir] = &MockFile{Permissions: 0o755, ModTime: time.Now(), IsDirectory: true}
	}
}

// ReadFile returns the content of a file, or false when it does not exist.
func (m *MockFilesystemManager) ReadFile(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok || f.IsDirectory {
		return nil, false
	}
	return f.Content, true
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*romba.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return romba.NewPath(absPath, file.IsDirectory, infoFor(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *romba.Path) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *romba.Path) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return infoFor(path.String(), file), nil
}

// FindFiles returns the files below path, sorted. Ignore patterns are not
// applied.
func (m *MockFilesystemManager) FindFiles(path *romba.Path, recursive bool) ([]*romba.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := path.String() + string(filepath.Separator)
	var out []*romba.Path
	for p, f := range m.files {
		if f.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && filepath.Dir(p) != path.String() {
			continue
		}
		out = append(out, romba.NewPath(p, false, infoFor(p, f)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// CreateFile returns a writer whose content is stored on Close.
func (m *MockFilesystemManager) CreateFile(absPath string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[absPath]; ok {
		return nil, fmt.Errorf("creating file: %s already exists", absPath)
	}
	m.addParents(absPath)
	m.files[absPath] = &MockFile{Permissions: 0o644, ModTime: time.Now()}
	return &mockWriter{m: m, path: absPath}, nil
}

func (m *MockFilesystemManager) Remove(absPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[absPath]; !ok {
		return fmt.Errorf("file not found: %s", absPath)
	}
	delete(m.files, absPath)
	return nil
}

type mockWriter struct {
	m    *MockFilesystemManager
	path string
	buf  bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *mockWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if f, ok := w.m.files[w.path]; ok {
		f.Content = w.buf.Bytes()
	}
	return nil
}

func infoFor(path string, f *MockFile) fs.FileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(f.Content)),
		mode:    f.Permissions,
		modTime: f.ModTime,
		isDir:   f.IsDirectory,
	}
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ romba.FilesystemManager = (*MockFilesystemManager)(nil)
