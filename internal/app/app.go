package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"romba-go/internal/config"
	"romba-go/internal/database"
	"romba-go/internal/dedupe"
	"romba-go/internal/depot"
	"romba-go/internal/encryption"
	"romba-go/internal/fs"
	"romba-go/internal/model"
	"romba-go/internal/romba"
)

// RombaApp is the application layer between the CLI and romba.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and records mutating commands in the
// operation history.
type RombaApp struct {
	cfg       *config.Config
	index     *database.SQLiteIndex
	depots    *depot.Pool
	fsmgr     romba.FilesystemManager
	encryptor romba.Encryptor
	clock     romba.Clock
	service   *romba.Service
	op        *Operation
	logFile   *os.File
}

// NewRombaApp creates a fully wired RombaApp from the given config.
// operation identifies the CLI command being run (e.g. "archive", "rescan").
// The caller must call Close when done.
func NewRombaApp(cfg *config.Config, operation string) (*RombaApp, error) {
	idgen := romba.UUIDGenerator{}
	opID := idgen.New()

	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	pool, err := depot.NewPoolFromConfig(cfg.Depots, log)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening depots: %w", err)
	}

	idx, err := database.NewIndexFromConfig(cfg.Index)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		idx.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)
	clock := romba.RealClock{}
	svc := romba.NewService(idx, pool, fsmgr, enc, log, clock, idgen, cfg.WorkerCount())

	return &RombaApp{
		cfg:       cfg,
		index:     idx,
		depots:    pool,
		fsmgr:     fsmgr,
		encryptor: enc,
		clock:     clock,
		service:   svc,
		op:        NewOperation(opID, operation, ""),
		logFile:   logFile,
	}, nil
}

// persistOperation records the operation in the index. Only commands that
// change the index or a depot call it.
func (a *RombaApp) persistOperation(ctx context.Context, parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = strings.Join(parameters, " ")
	err := a.index.CreateOperation(ctx, &romba.Operation{
		ID:         a.op.ID,
		Operation:  a.op.Operation,
		Parameters: a.op.Parameters,
		Status:     romba.OperationRunning,
		StartedAt:  a.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.persisted = true
	return nil
}

// Policy returns the archive policy configured as default.
func (a *RombaApp) Policy() romba.Policy {
	return romba.Policy{
		OnlyNeeded:      a.cfg.Policy.OnlyNeeded,
		NoDB:            a.cfg.Policy.NoDB,
		SkipInitialScan: a.cfg.Policy.SkipInitialScan,
	}
}

// Archive resolves the given paths and stores the files under them.
func (a *RombaApp) Archive(ctx context.Context, rawPaths []string, policy romba.Policy) (*romba.ArchiveResult, error) {
	if err := a.persistOperation(ctx, rawPaths...); err != nil {
		return nil, err
	}
	paths := make([]*romba.Path, 0, len(rawPaths))
	for _, raw := range rawPaths {
		p, err := a.fsmgr.Resolve(raw)
		if err != nil {
			return nil, a.op.Fail(fmt.Errorf("resolving path: %w", err))
		}
		paths = append(paths, p)
	}
	res, err := a.service.Archive(ctx, paths, policy)
	return res, a.op.Fail(err)
}

// RefreshDats imports the DATs under the configured dat_root.
func (a *RombaApp) RefreshDats(ctx context.Context) (*romba.RefreshResult, error) {
	if a.cfg.DatRoot == "" {
		return nil, fmt.Errorf("dat_root is not configured")
	}
	if err := a.persistOperation(ctx, a.cfg.DatRoot); err != nil {
		return nil, err
	}
	res, err := a.service.RefreshDats(ctx, a.cfg.DatRoot)
	return res, a.op.Fail(err)
}

// Rescan verifies the given depots, or every online depot when roots is
// empty.
func (a *RombaApp) Rescan(ctx context.Context, roots []string, resume bool) (*romba.RescanResult, error) {
	if err := a.persistOperation(ctx, roots...); err != nil {
		return nil, err
	}
	res, err := a.service.Rescan(ctx, roots, resume)
	return res, a.op.Fail(err)
}

// Build writes the items of the DAT at datPath into outDir.
func (a *RombaApp) Build(ctx context.Context, datPath, outDir string) (*romba.BuildResult, error) {
	dat, _, err := a.service.LoadDat(datPath)
	if err != nil {
		return nil, err
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	return a.service.Build(ctx, dat, absOut)
}

// Fixdat writes a DAT of the items of datPath that cannot be built to
// outFile and returns how many there are.
func (a *RombaApp) Fixdat(ctx context.Context, datPath, outFile string) (int, error) {
	dat, _, err := a.service.LoadDat(datPath)
	if err != nil {
		return 0, err
	}
	fix, err := a.service.Fixdat(ctx, dat)
	if err != nil {
		return 0, err
	}
	return fix.Len(), a.WriteDat(outFile, fix)
}

// WriteDat writes d as a new DAT at rawPath.
func (a *RombaApp) WriteDat(rawPath string, d *model.DatFile) error {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return a.service.WriteDat(absPath, d)
}

// Lookup resolves each hash in turn.
func (a *RombaApp) Lookup(ctx context.Context, hashes []string) ([]*romba.LookupResult, error) {
	out := make([]*romba.LookupResult, 0, len(hashes))
	for _, h := range hashes {
		res, err := a.service.Lookup(ctx, h)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Dedup merges the DATs at datPaths, removes duplicates by the named key
// and writes the result to outFile. It returns the number of items kept.
func (a *RombaApp) Dedup(datPaths []string, by, outFile string) (int, error) {
	key, err := dedupe.ParseBucketBy(by)
	if err != nil {
		return 0, err
	}
	dats := make([]*model.DatFile, 0, len(datPaths))
	for _, p := range datPaths {
		d, _, err := a.service.LoadDat(p)
		if err != nil {
			return 0, err
		}
		dats = append(dats, d)
	}
	name := strings.TrimSuffix(filepath.Base(outFile), filepath.Ext(outFile))
	out := a.service.Dedup(model.Header{Name: name, Description: name}, dats, key)
	return out.Len(), a.WriteDat(outFile, out)
}

// DiffDats writes the items of newPath missing from oldPath to outFile and
// returns how many there are.
func (a *RombaApp) DiffDats(oldPath, newPath, outFile string) (int, error) {
	older, _, err := a.service.LoadDat(oldPath)
	if err != nil {
		return 0, err
	}
	newer, _, err := a.service.LoadDat(newPath)
	if err != nil {
		return 0, err
	}
	out := a.service.Diff(older, newer)
	return out.Len(), a.WriteDat(outFile, out)
}

// BackupIndex writes an encrypted snapshot of the index to rawPath.
func (a *RombaApp) BackupIndex(ctx context.Context, rawPath string) error {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return a.service.BackupIndex(ctx, absPath)
}

// RestoreIndex decrypts the snapshot at rawSrc into rawDest, or next to the
// live index when rawDest is empty. It returns the path written.
func (a *RombaApp) RestoreIndex(rawSrc, rawDest, passphrase string) (string, error) {
	dest := rawDest
	if dest == "" {
		if a.index.Path() == ":memory:" {
			return "", fmt.Errorf("an output path is required for an in-memory index")
		}
		dest = romba.RestorePath(a.index.Path())
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return "", fmt.Errorf("unlocking private key: %w", err)
	}
	if err := a.service.RestoreIndex(rawSrc, absDest, dc); err != nil {
		return "", err
	}
	return absDest, nil
}

// GetStatus returns index and depot statistics.
func (a *RombaApp) GetStatus(ctx context.Context) (*romba.Status, error) {
	return a.service.GetStatus(ctx)
}

// GetHistory returns the most recent operations.
func (a *RombaApp) GetHistory(ctx context.Context, limit int) ([]*romba.Operation, error) {
	return a.service.GetHistory(ctx, limit)
}

// Close finishes the operation record when one was persisted and closes
// the index and the log file.
func (a *RombaApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.index.FinishOperation(context.Background(), a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.index.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
