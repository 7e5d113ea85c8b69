package romba

import "io/fs"

// Path is a resolved absolute filesystem path with the stat info taken when
// it was resolved. Paths are produced by FilesystemManager.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{absPath: absPath, isDir: isDir, info: info}
}

func (p *Path) String() string { return p.absPath }

func (p *Path) IsDir() bool { return p.isDir }

// Size is the file size at resolve time, or 0 for directories.
func (p *Path) Size() int64 {
	if p.isDir || p.info == nil {
		return 0
	}
	return p.info.Size()
}

func (p *Path) Info() fs.FileInfo { return p.info }
