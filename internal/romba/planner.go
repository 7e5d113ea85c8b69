package romba

import (
	"context"
	"fmt"

	"romba-go/internal/model"
)

// Plan decides which items of dat are candidates for storage and returns
// them as a need-list DAT. Machines, names and sources are preserved and
// items keep their order, so planning an unchanged DAT against an unchanged
// index always yields the same need-list.
//
// With OnlyNeeded set, an item is kept only when the index already knows
// one of its CRC32, MD5 or SHA-1. NoDB overrides OnlyNeeded and keeps
// every item without consulting the index.
func (s *Service) Plan(ctx context.Context, dat *model.DatFile, policy Policy) (*model.DatFile, error) {
	need := model.NewDatFile(dat.Header)
	for _, src := range dat.Sources {
		need.AddSource(src.Name)
	}

	consult := policy.OnlyNeeded && !policy.NoDB
	for i := range dat.Items {
		if dat.Items[i].Removed {
			continue
		}
		e := dat.Entry(i)
		if consult {
			h := e.Item.Hashes
			found, err := s.index.LookupByAny(ctx, h.CRC32, h.MD5, h.SHA1)
			if err != nil {
				return nil, fmt.Errorf("looking up %s: %w", e.Item.Name, err)
			}
			if !found {
				continue
			}
		}
		need.Copy(e)
	}

	s.logger.Debug("planned", "dat", dat.Header.Name, "items", dat.Len(), "needed", need.Len())
	return need, nil
}
