package romba

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"romba-go/internal/model"
)

// BuildResult summarises a build.
type BuildResult struct {
	Written  []string
	Missing  *model.DatFile // items with no copy in any depot
	Failures []Failure
}

// Build materialises dat under outDir as <outDir>/<machine>/<item>, reading
// each item from the depot pool. Items that cannot be located are collected
// in Missing, which can be written out as a fixdat. Existing output files
// are never overwritten.
func (s *Service) Build(ctx context.Context, dat *model.DatFile, outDir string) (*BuildResult, error) {
	res := &BuildResult{Missing: s.fixdatFor(dat)}
	for i := range dat.Items {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("build cancelled: %w", err)
		}
		if dat.Items[i].Removed || !buildable(dat.Items[i]) {
			continue
		}
		e := dat.Entry(i)

		target, err := outputPath(outDir, e)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Path: e.Item.Name, Err: err})
			continue
		}
		d, sha1, err := s.locate(ctx, e.Item)
		if errors.Is(err, ErrNotFound) {
			res.Missing.Copy(e)
			continue
		}
		if err != nil {
			return res, err
		}

		if err := s.extract(d, sha1, target); err != nil {
			s.logger.Warn("cannot build item", "path", target, "error", err)
			res.Failures = append(res.Failures, Failure{Path: target, Err: err})
			if errors.Is(err, ErrCorruptObject) {
				res.Missing.Copy(e)
			}
			continue
		}
		res.Written = append(res.Written, target)
	}

	s.logger.Info("build complete", "dat", dat.Header.Name, "written", len(res.Written), "missing", res.Missing.Len(), "failed", len(res.Failures))
	return res, nil
}

// Fixdat returns the items of dat that no depot holds.
func (s *Service) Fixdat(ctx context.Context, dat *model.DatFile) (*model.DatFile, error) {
	fix := s.fixdatFor(dat)
	for i := range dat.Items {
		if dat.Items[i].Removed || !buildable(dat.Items[i]) {
			continue
		}
		_, _, err := s.locate(ctx, &dat.Items[i])
		if errors.Is(err, ErrNotFound) {
			fix.Copy(dat.Entry(i))
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return fix, nil
}

func (s *Service) fixdatFor(dat *model.DatFile) *model.DatFile {
	h := dat.Header
	h.Name = "fix_" + h.Name
	if h.Description != "" {
		h.Description = "fix_" + h.Description
	}
	fix := model.NewDatFile(h)
	for _, src := range dat.Sources {
		fix.AddSource(src.Name)
	}
	return fix
}

// buildable reports whether an item can be located at all. No-dump items
// and items without content hashes are never built or reported missing.
func buildable(it model.Item) bool {
	if it.Hashes.Status == model.StatusNodump {
		return false
	}
	return it.Hashes.Has(model.SHA1) || it.Hashes.Has(model.MD5) || it.Hashes.Has(model.CRC32)
}

func outputPath(outDir string, e model.Entry) (string, error) {
	name := filepath.FromSlash(e.Item.Name)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("item name escapes the output directory: %q", e.Item.Name)
	}
	machine := e.MachineName()
	if machine == "" {
		return filepath.Join(outDir, name), nil
	}
	machine = filepath.FromSlash(machine)
	if !filepath.IsLocal(machine) {
		return "", fmt.Errorf("machine name escapes the output directory: %q", e.MachineName())
	}
	return filepath.Join(outDir, machine, name), nil
}

// locate finds a depot object for it. The item's own SHA-1 is tried first,
// then every SHA-1 the index links to its hashes. An object only counts when
// its header agrees with the item's hashes and size.
func (s *Service) locate(ctx context.Context, it *model.Item) (Depot, string, error) {
	var candidates []string
	if it.Hashes.Has(model.SHA1) {
		candidates = append(candidates, it.Hashes.SHA1)
	}
	resolved, err := s.index.ResolveSHA1s(ctx, it.Hashes)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %s: %w", it.Name, err)
	}
	for _, sha1 := range resolved {
		if sha1 != it.Hashes.SHA1 {
			candidates = append(candidates, sha1)
		}
	}

	for _, sha1 := range candidates {
		d, err := s.depots.Find(sha1)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidHash) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		if ok, err := s.matches(d, sha1, it); err != nil {
			return nil, "", err
		} else if ok {
			return d, sha1, nil
		}
	}
	return nil, "", fmt.Errorf("%s: %w", it.Name, ErrNotFound)
}

func (s *Service) matches(d Depot, sha1 string, it *model.Item) (bool, error) {
	r, info, err := d.Open(sha1)
	if err != nil {
		if errors.Is(err, ErrCorruptObject) {
			s.logger.Warn("corrupt depot object", "depot", d.Root(), "sha1", sha1, "error", err)
			return false, nil
		}
		return false, err
	}
	r.Close()

	if it.HasSize() && it.Size != info.Size {
		return false, nil
	}
	got := model.HashSet{SHA1: info.SHA1, MD5: info.MD5, CRC32: info.CRC32}
	return model.HashMatch(it.Hashes, got), nil
}

func (s *Service) extract(d Depot, sha1, target string) error {
	r, _, err := d.Open(sha1)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := s.fsmgr.CreateFile(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		s.fsmgr.Remove(target)
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", target, err)
	}
	return nil
}
