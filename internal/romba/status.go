package romba

import (
	"context"
	"fmt"
)

// DepotStatus describes one configured depot.
type DepotStatus struct {
	Root   string
	Online bool
	Full   bool
	Size   int64
}

// Status is the combined state of the index and the depots.
type Status struct {
	Index  *IndexStats
	Depots []DepotStatus
}

// GetStatus returns index row counts and the state of every depot.
func (s *Service) GetStatus(ctx context.Context) (*Status, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}
	st := &Status{Index: stats}
	for _, d := range s.depots.Depots() {
		st.Depots = append(st.Depots, DepotStatus{
			Root:   d.Root(),
			Online: d.Online(),
			Full:   d.Full(),
			Size:   d.Size(),
		})
	}
	return st, nil
}
