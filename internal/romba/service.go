package romba

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"romba-go/internal/datfile"
	"romba-go/internal/model"
)

// Policy holds the flags that decide which content an operation touches.
type Policy struct {
	// OnlyNeeded restricts archiving to content some imported DAT refers to.
	OnlyNeeded bool

	// NoDB bypasses the index entirely: every file is needed and nothing is
	// recorded.
	NoDB bool

	// SkipInitialScan skips the size pre-flight before archiving.
	SkipInitialScan bool
}

// Failure is a per-item error. Batch operations collect failures and carry
// on with the remaining items.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string { return f.Path + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// Service is the orchestration layer that coordinates the index, the depots
// and the filesystem to perform the operations the CLI exposes.
type Service struct {
	index     Index
	depots    DepotPool
	fsmgr     FilesystemManager
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	workers   int
}

// NewService creates a Service. workers bounds the hashing pool and is
// clamped to [1, 16]. encryptor may be nil when index snapshots are not
// used.
func NewService(index Index, depots DepotPool, fsmgr FilesystemManager, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, workers int) *Service {
	return &Service{
		index:     index,
		depots:    depots,
		fsmgr:     fsmgr,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		workers:   workers,
	}
}

// LoadDat reads and parses a DAT file. It returns the parsed DAT and the
// SHA-1 of the raw file.
func (s *Service) LoadDat(rawPath string) (*model.DatFile, string, error) {
	path, err := s.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, "", err
	}
	return s.loadDat(path)
}

func (s *Service) loadDat(path *Path) (*model.DatFile, string, error) {
	f, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening dat: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading dat: %w", err)
	}
	d, sha1, err := datfile.Parse(data, filepath.Base(path.String()))
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path.String(), err)
	}
	return d, sha1, nil
}

// WriteDat writes d as Logiqx XML to a new file at absPath.
func (s *Service) WriteDat(absPath string, d *model.DatFile) error {
	var buf bytes.Buffer
	if err := datfile.Write(&buf, d); err != nil {
		return err
	}
	w, err := s.fsmgr.CreateFile(absPath)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return fmt.Errorf("writing dat: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing dat: %w", err)
	}
	return nil
}
