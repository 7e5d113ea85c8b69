package romba

import (
	"io"
	"io/fs"
)

// FilesystemManager abstracts access to input files and build output.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it and rejects anything that is
	// not a regular file or a directory.
	Resolve(rawPath string) (*Path, error)

	Open(path *Path) (io.ReadCloser, error)

	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles returns the regular files under path that are not ignored,
	// sorted by path.
	FindFiles(path *Path, recursive bool) ([]*Path, error)

	// CreateFile creates absPath and its parent directories. It fails if the
	// file already exists.
	CreateFile(absPath string) (io.WriteCloser, error)

	// Remove deletes a file written by CreateFile.
	Remove(absPath string) error
}
