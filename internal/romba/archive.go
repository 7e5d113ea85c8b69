package romba

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
)

// ArchiveResult summarises an archive run.
type ArchiveResult struct {
	Scanned  int   // regular files hashed
	Needed   int   // files the planner kept
	Stored   int   // objects written to a depot
	Existing int   // objects already present in a depot
	Bytes    int64 // uncompressed bytes of the stored objects
	Failures []Failure
}

type scanned struct {
	path   *Path
	hashes model.HashSet
	size   int64
}

// Archive hashes the files under paths, plans them against the index and
// stores the needed ones in the depot pool. Each stored object is recorded
// with its depot location unless the policy bypasses the index.
//
// Unreadable inputs are reported in Failures and do not stop the run. If
// every depot is full the run still completes and ErrDepotFull is returned
// alongside the result.
func (s *Service) Archive(ctx context.Context, paths []*Path, policy Policy) (*ArchiveResult, error) {
	res := &ArchiveResult{}
	files := s.collect(paths, res)

	if !policy.SkipInitialScan {
		var total int64
		for _, f := range files {
			total += f.Size()
		}
		s.logger.Info("archive pre-flight", "files", len(files), "bytes", total)
	}

	pool := ingest.NewPool(s.workers)
	byPath := make(map[string]*Path, len(files))
	inputs := make([]string, len(files))
	for i, f := range files {
		inputs[i] = f.String()
		byPath[f.String()] = f
	}

	hashed := ingest.Run(ctx, pool, inputs, func(ctx context.Context, p string) (scanned, error) {
		return s.hashFile(byPath[p])
	})
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("archive cancelled: %w", err)
	}

	dat := model.NewDatFile(model.Header{Name: "archive-" + s.idgen.New()})
	dat.AddSource("archive")
	bySHA1 := make(map[string]scanned)
	for _, r := range hashed {
		if r.Err != nil {
			s.logger.Warn("cannot hash input", "path", r.Input, "error", r.Err)
			res.Failures = append(res.Failures, Failure{Path: r.Input, Err: r.Err})
			continue
		}
		res.Scanned++
		m := dat.AddMachine(model.Machine{Name: filepath.Base(filepath.Dir(r.Input))})
		dat.AddItem(model.Item{
			Kind:    model.KindRom,
			Name:    filepath.Base(r.Input),
			Size:    r.Value.size,
			Hashes:  r.Value.hashes,
			Machine: m,
		})
		if _, ok := bySHA1[r.Value.hashes.SHA1]; !ok {
			bySHA1[r.Value.hashes.SHA1] = r.Value
		}
	}

	need, err := s.Plan(ctx, dat, policy)
	if err != nil {
		return res, err
	}
	res.Needed = need.Len()

	var pending []string
	queued := make(map[string]struct{})
	for i := range need.Items {
		sha1 := need.Items[i].Hashes.SHA1
		if _, ok := queued[sha1]; ok {
			continue
		}
		queued[sha1] = struct{}{}
		pending = append(pending, sha1)
	}

	// Each stored object is committed in its own transaction, and queued
	// entries still land after ctx is cancelled.
	var writer *ingest.Writer
	if !policy.NoDB {
		writer = ingest.NewWriter(context.WithoutCancel(ctx), s.index, 1)
	}

	type stored struct {
		depot  Depot
		stored bool
	}
	results := ingest.Run(ctx, pool, pending, func(ctx context.Context, sha1 string) (stored, error) {
		f := bySHA1[sha1]
		d, ok, err := s.storeFile(f)
		if err != nil {
			return stored{}, err
		}
		if writer != nil {
			writer.Add(model.IndexEntry{Hashes: f.hashes, Depot: d.Root()})
		}
		return stored{depot: d, stored: ok}, nil
	})

	full := false
	for _, r := range results {
		f := bySHA1[r.Input]
		if r.Err != nil {
			if errors.Is(r.Err, ErrDepotFull) {
				full = true
			}
			s.logger.Warn("cannot store input", "path", f.path.String(), "error", r.Err)
			res.Failures = append(res.Failures, Failure{Path: f.path.String(), Err: r.Err})
			continue
		}
		if r.Value.stored {
			res.Stored++
			res.Bytes += f.size
			s.logger.Debug("stored", "sha1", r.Input, "depot", r.Value.depot.Root())
		} else {
			res.Existing++
		}
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			return res, fmt.Errorf("recording archived content: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("archive cancelled: %w", err)
	}

	s.logger.Info("archive complete", "scanned", res.Scanned, "stored", res.Stored, "existing", res.Existing, "failed", len(res.Failures))
	if full {
		return res, fmt.Errorf("archiving: %w", ErrDepotFull)
	}
	return res, nil
}

// collect expands directories into their files. Directories that cannot be
// listed are recorded as failures.
func (s *Service) collect(paths []*Path, res *ArchiveResult) []*Path {
	var files []*Path
	seen := make(map[string]struct{})
	add := func(p *Path) {
		if _, ok := seen[p.String()]; ok {
			return
		}
		seen[p.String()] = struct{}{}
		files = append(files, p)
	}

	for _, p := range paths {
		if !p.IsDir() {
			add(p)
			continue
		}
		found, err := s.fsmgr.FindFiles(p, true)
		if err != nil {
			s.logger.Warn("cannot list input", "path", p.String(), "error", err)
			res.Failures = append(res.Failures, Failure{Path: p.String(), Err: err})
			continue
		}
		for _, f := range found {
			add(f)
		}
	}
	return files
}

func (s *Service) hashFile(p *Path) (scanned, error) {
	f, err := s.fsmgr.Open(p)
	if err != nil {
		return scanned{}, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	hs, n, err := ingest.Sum(f)
	if err != nil {
		return scanned{}, fmt.Errorf("hashing input: %w", err)
	}
	return scanned{path: p, hashes: hs, size: n}, nil
}

func (s *Service) storeFile(f scanned) (Depot, bool, error) {
	r, err := s.fsmgr.Open(f.path)
	if err != nil {
		return nil, false, fmt.Errorf("opening input: %w", err)
	}
	defer r.Close()
	return s.depots.Store(r, f.hashes, f.size)
}
