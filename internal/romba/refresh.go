package romba

import (
	"context"
	"fmt"
	"sort"

	"romba-go/internal/datfile"
	"romba-go/internal/ingest"
	"romba-go/internal/model"
)

// RefreshResult summarises a DAT refresh.
type RefreshResult struct {
	Scanned  int // DAT files parsed
	Imported int // DATs recorded for the first time
	Skipped  int // DATs already registered
	Items    int // item hash tuples recorded
	Removed  int // registered DATs no longer on disk
	Failures []Failure
}

type parsedDat struct {
	dat  *model.DatFile
	sha1 string
}

// RefreshDats imports every DAT under datRoot into the index. A DAT is
// identified by the SHA-1 of its file, so an unchanged DAT is skipped and an
// edited one is imported again. The hashes of one DAT are written in a
// single transaction before the DAT is registered.
//
// Registered DATs that are no longer found under datRoot are unregistered.
// This reconciliation is skipped when any DAT failed to parse, since its
// hash is unknown.
func (s *Service) RefreshDats(ctx context.Context, datRoot string) (*RefreshResult, error) {
	root, err := s.fsmgr.Resolve(datRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving dat root: %w", err)
	}
	all, err := s.fsmgr.FindFiles(root, true)
	if err != nil {
		return nil, fmt.Errorf("finding dats: %w", err)
	}

	byPath := make(map[string]*Path)
	var inputs []string
	for _, p := range all {
		if datfile.IsDatFile(p.String()) {
			inputs = append(inputs, p.String())
			byPath[p.String()] = p
		}
	}

	res := &RefreshResult{}
	parsed := ingest.Run(ctx, ingest.NewPool(s.workers), inputs, func(ctx context.Context, p string) (parsedDat, error) {
		d, sha1, err := s.loadDat(byPath[p])
		return parsedDat{dat: d, sha1: sha1}, err
	})
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("refresh cancelled: %w", err)
	}

	writer := ingest.NewWriter(ctx, s.index, 0)
	defer writer.Close()

	onDisk := make(map[string]struct{})
	for _, r := range parsed {
		if r.Err != nil {
			s.logger.Warn("cannot read dat", "path", r.Input, "error", r.Err)
			res.Failures = append(res.Failures, Failure{Path: r.Input, Err: r.Err})
			continue
		}
		res.Scanned++
		onDisk[r.Value.sha1] = struct{}{}

		n, imported, err := s.importDat(ctx, writer, r.Input, r.Value)
		if err != nil {
			return res, err
		}
		if !imported {
			res.Skipped++
			continue
		}
		res.Imported++
		res.Items += n
	}

	if len(res.Failures) > 0 {
		s.logger.Warn("skipping orphan dat reconciliation", "failures", len(res.Failures))
	} else {
		removed, err := s.unregisterOrphans(ctx, onDisk)
		if err != nil {
			return res, err
		}
		res.Removed = removed
	}

	s.logger.Info("dats refreshed", "scanned", res.Scanned, "imported", res.Imported, "skipped", res.Skipped, "removed", res.Removed)
	return res, nil
}

func (s *Service) importDat(ctx context.Context, writer *ingest.Writer, path string, p parsedDat) (int, bool, error) {
	registered, err := s.index.IsDatRegistered(ctx, p.sha1)
	if err != nil {
		return 0, false, fmt.Errorf("checking dat %s: %w", path, err)
	}
	if registered {
		s.logger.Debug("dat already imported", "path", path)
		return 0, false, nil
	}

	n := 0
	for i := range p.dat.Items {
		h := p.dat.Items[i].Hashes
		if !h.Has(model.CRC32) && !h.Has(model.MD5) && !h.Has(model.SHA1) {
			continue
		}
		if err := h.Validate(); err != nil {
			s.logger.Warn("skipping item with malformed hash", "dat", path, "item", p.dat.Items[i].Name, "error", err)
			continue
		}
		writer.Add(model.IndexEntry{Hashes: h})
		n++
	}
	if err := writer.Flush(); err != nil {
		return 0, false, fmt.Errorf("recording dat %s: %w", path, err)
	}
	if err := s.index.RegisterDat(ctx, p.sha1); err != nil {
		return 0, false, fmt.Errorf("registering dat %s: %w", path, err)
	}
	s.logger.Info("dat imported", "path", path, "items", n)
	return n, true, nil
}

func (s *Service) unregisterOrphans(ctx context.Context, onDisk map[string]struct{}) (int, error) {
	registered, err := s.index.DistinctRegisteredDats(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing registered dats: %w", err)
	}
	var orphans []string
	for sha1 := range registered {
		if _, ok := onDisk[sha1]; !ok {
			orphans = append(orphans, sha1)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}
	sort.Strings(orphans)
	if err := s.index.UnregisterDats(ctx, orphans); err != nil {
		return 0, fmt.Errorf("unregistering dats: %w", err)
	}
	for _, sha1 := range orphans {
		s.logger.Info("dat removed", "sha1", sha1)
	}
	return len(orphans), nil
}
