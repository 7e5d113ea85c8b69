package romba

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"romba-go/internal/ingest"
	"romba-go/internal/model"
)

// shardCount is the number of top-level shards in a depot.
const shardCount = 256

// Discrepancy is a depot object that could not be verified during a rescan.
type Discrepancy struct {
	Depot string
	SHA1  string
	Err   error
}

// RescanResult summarises a depot rescan.
type RescanResult struct {
	Depots        int
	Objects       int   // objects found on disk
	Recorded      int   // verified objects recorded in the index
	Removed       int   // index locations with no object on disk
	Size          int64 // measured size of the last depot completed
	Discrepancies []Discrepancy
}

// Rescan rehashes every object of the given depots and reconciles the index
// with what is on disk. Verified objects are recorded with their depot;
// index locations whose object is missing or corrupt are cleared. With no
// roots, every online depot is rescanned.
//
// Work is committed one top-level shard at a time and the shard is then
// checkpointed. With resume set, shards up to the checkpoint of an earlier
// interrupted run are skipped. Cancelling ctx stops the rescan between
// files; the shard in progress is left untouched and redone on resume.
func (s *Service) Rescan(ctx context.Context, roots []string, resume bool) (*RescanResult, error) {
	depots, err := s.selectDepots(roots)
	if err != nil {
		return nil, err
	}

	res := &RescanResult{}
	pool := ingest.NewPool(s.workers)
	for _, d := range depots {
		if err := s.rescanDepot(ctx, pool, d, resume, res); err != nil {
			return res, err
		}
		res.Depots++
	}
	s.logger.Info("rescan complete", "depots", res.Depots, "objects", res.Objects, "removed", res.Removed, "discrepancies", len(res.Discrepancies))
	return res, nil
}

func (s *Service) selectDepots(roots []string) ([]Depot, error) {
	if len(roots) == 0 {
		var online []Depot
		for _, d := range s.depots.Depots() {
			if d.Online() {
				online = append(online, d)
			} else {
				s.logger.Info("skipping offline depot", "depot", d.Root())
			}
		}
		return online, nil
	}

	var out []Depot
	for _, raw := range roots {
		root, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving depot path: %w", err)
		}
		var found Depot
		for _, d := range s.depots.Depots() {
			if filepath.Clean(d.Root()) == root {
				found = d
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("not a configured depot: %s", raw)
		}
		if !found.Online() {
			return nil, fmt.Errorf("depot is offline: %s", raw)
		}
		out = append(out, found)
	}
	return out, nil
}

func (s *Service) rescanDepot(ctx context.Context, pool *ingest.Pool, d Depot, resume bool, res *RescanResult) error {
	root := d.Root()
	start := 0
	if resume {
		cp, err := s.index.RescanCheckpoint(ctx, root)
		if err != nil {
			return fmt.Errorf("reading rescan checkpoint: %w", err)
		}
		if cp != "" {
			n, err := strconv.ParseUint(cp, 16, 8)
			if err != nil {
				return fmt.Errorf("malformed rescan checkpoint %q", cp)
			}
			start = int(n) + 1
			s.logger.Info("resuming rescan", "depot", root, "after", cp)
		}
	} else if err := s.index.ClearRescanCheckpoint(ctx, root); err != nil {
		return fmt.Errorf("clearing rescan checkpoint: %w", err)
	}

	for i := start; i < shardCount; i++ {
		shard := fmt.Sprintf("%02x", i)
		if err := s.rescanShard(ctx, pool, d, shard, res); err != nil {
			return err
		}
		if err := s.index.SetRescanCheckpoint(ctx, root, shard); err != nil {
			return fmt.Errorf("saving rescan checkpoint: %w", err)
		}
	}

	if err := s.index.ClearRescanCheckpoint(ctx, root); err != nil {
		return fmt.Errorf("clearing rescan checkpoint: %w", err)
	}
	size, err := d.Measure(ctx)
	if err != nil {
		return fmt.Errorf("measuring depot %s: %w", root, err)
	}
	res.Size = size
	s.logger.Info("depot rescanned", "depot", root, "size", size)
	return nil
}

func (s *Service) rescanShard(ctx context.Context, pool *ingest.Pool, d Depot, shard string, res *RescanResult) error {
	root := d.Root()
	var objects []string
	err := d.WalkShard(ctx, shard, func(sha1 string) error {
		objects = append(objects, sha1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking shard %s of %s: %w", shard, root, err)
	}

	rehashed := ingest.Run(ctx, pool, objects, func(ctx context.Context, sha1 string) (model.HashSet, error) {
		return d.Rehash(sha1)
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rescan cancelled: %w", err)
	}

	writer := ingest.NewWriter(ctx, s.index, 0)
	verified := make(map[string]struct{}, len(objects))
	for _, r := range rehashed {
		res.Objects++
		if r.Err != nil {
			s.logger.Warn("depot object failed verification", "depot", root, "sha1", r.Input, "error", r.Err)
			res.Discrepancies = append(res.Discrepancies, Discrepancy{Depot: root, SHA1: r.Input, Err: r.Err})
			continue
		}
		verified[r.Input] = struct{}{}
		writer.Add(model.IndexEntry{Hashes: r.Value, Depot: root})
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("recording shard %s of %s: %w", shard, root, err)
	}
	res.Recorded += len(verified)

	indexed, err := s.index.ListDepotSHA1s(ctx, root, shard)
	if err != nil {
		return fmt.Errorf("listing indexed objects: %w", err)
	}
	var missing []string
	for _, sha1 := range indexed {
		if _, ok := verified[sha1]; !ok {
			missing = append(missing, sha1)
		}
	}
	if len(missing) > 0 {
		if err := s.index.RemoveDepotEntries(ctx, root, missing); err != nil {
			return fmt.Errorf("removing missing objects: %w", err)
		}
		res.Removed += len(missing)
		s.logger.Info("cleared missing objects", "depot", root, "shard", shard, "count", len(missing))
	}
	return nil
}
